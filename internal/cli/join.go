package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkeye/cowatch/internal/domain"
	"github.com/dkeye/cowatch/internal/peer"
)

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join an existing room as the responding participant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := domain.ParseRoomID(args[0])
		if err != nil {
			return fmt.Errorf("%w: want six digits, got %q", err, args[0])
		}
		return runSession(roomID, peer.RoleResponder)
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
}
