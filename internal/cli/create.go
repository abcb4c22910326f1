package cli

import (
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/dkeye/cowatch/internal/domain"
	"github.com/dkeye/cowatch/internal/peer"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Host a new room and wait for the other participant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Room ids are client-generated with no uniqueness guarantee; a
		// collision just means the second creator joins the first's room.
		roomID, err := domain.ParseRoomID(fmt.Sprintf("%06d", rand.IntN(1000000)))
		if err != nil {
			return err
		}
		fmt.Printf("Room id: %s\n", roomID)
		return runSession(roomID, peer.RoleInitiator)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
