package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ashahealth/mediwagon/internal/app"
	"github.com/ashahealth/mediwagon/internal/conversation"
	"github.com/ashahealth/mediwagon/internal/tui"
)

func newChatCommand(c *cli) *cobra.Command {
	var (
		lat, lon float64
		noAudio  bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the terminal dashboard and talk to Asha",
		Long: `Open the patient dashboard in the terminal.

Type a description of your symptoms or press tab and a number key for a
quick symptom. Asha replies with an analysis, a suggested specialist and a
voice note.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, sess, err := requireSession(cmd, c)
			if err != nil {
				return err
			}
			defer closeIdentity(ids)

			if !cmd.Flags().Changed("lat") {
				lat = c.cfg.DefaultLat
			}
			if !cmd.Flags().Changed("lon") {
				lon = c.cfg.DefaultLon
			}

			orch := conversation.New(conversation.Config{
				Backend:     app.NewGateway(c.cfg, nil),
				SessionID:   uuid.NewString(),
				UserName:    sess.User.Name,
				AuthToken:   sess.Token,
				Lat:         lat,
				Lon:         lon,
				AudioOrigin: c.cfg.AudioOrigin,
				CallTimeout: c.cfg.BackendTimeout,
				Greet:       true,
			})
			model := tui.New(tui.Options{
				Conversation: orch,
				UserName:     sess.User.Name,
				AudioOrigin:  c.cfg.AudioOrigin,
				AutoPlay:     c.cfg.AudioAutoPlay && !noAudio,
			})
			defer model.Close()

			p := tea.NewProgram(model,
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			)
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude sent with symptom analysis (default from config)")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude sent with symptom analysis (default from config)")
	cmd.Flags().BoolVar(&noAudio, "no-autoplay", false, "Load voice notes without playing them")
	return cmd
}
