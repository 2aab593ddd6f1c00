package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/session"
)

func init() {
	rootCmd.AddCommand(roomCmd)
	roomCmd.AddCommand(roomDeriveCmd, roomParseCmd, roomListCmd)
	roomDeriveCmd.Flags().String("prefix", session.DefaultPrefix, "slug prefix")
}

var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Derive, parse and list rooms",
}

var roomDeriveCmd = &cobra.Command{
	Use:   "derive <host> <slug>",
	Short: "Print the room id and fragment every viewer of a page agrees on",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		id := session.DeriveRoomID(args[0], args[1], prefix)
		fmt.Fprintf(cmd.OutOrStdout(), "room:     %s\nfragment: %s\noverflow: %s\n", id.RoomID(), session.Fragment(id), session.NextRoom(id).RoomID())
		return nil
	},
}

var roomParseCmd = &cobra.Command{
	Use:   "parse <fragment>",
	Short: "Split a location fragment into domain and slug",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok := session.ParseFragment(args[0])
		if !ok {
			return fmt.Errorf("fragment %q names no room", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "domain: %s\nslug:   %s\nroom:   %s\n", id.Domain, id.Slug, id.RoomID())
		return nil
	},
}

var roomListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rooms on the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		hc := &http.Client{Timeout: 5 * time.Second}
		res, err := hc.Get(strings.TrimRight(cfg.Client.BaseURL, "/") + "/api/rooms")
		if err != nil {
			return fmt.Errorf("list rooms: %w", err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			return fmt.Errorf("list rooms: status %d", res.StatusCode)
		}
		var channels map[string][]core.RoomInfo
		if err := json.NewDecoder(res.Body).Decode(&channels); err != nil {
			return fmt.Errorf("list rooms: decode: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHANNEL\tROOM\tMEMBERS\tLIMIT")
		for _, ch := range []string{"poll", "relay"} {
			for _, r := range channels[ch] {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", ch, r.ID, r.MemberCount, r.Limit)
			}
		}
		return w.Flush()
	},
}
