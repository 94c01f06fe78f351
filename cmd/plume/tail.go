package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	plume "github.com/plumesocial/plume-go"
	"github.com/spf13/cobra"
)

var tailShowPresence bool

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().BoolVar(&tailShowPresence, "presence", false, "also print presence and typing changes")
}

var tailCmd = &cobra.Command{
	Use:   "tail <room>...",
	Short: "Stream live events from one or more rooms",
	Long: "Join rooms over the real-time connection and print events as they arrive.\n" +
		"Rooms use kind:id notation, e.g. blog-view:blog-42, chat:chat-7, notifications:" +
		"user-1.\nPress Ctrl-C to stop.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rooms []plume.RoomKey
		for _, arg := range args {
			room, err := plume.ParseRoomKey(arg)
			if err != nil {
				return fmt.Errorf("invalid room %q: %w", arg, err)
			}
			rooms = append(rooms, room)
		}

		client := getClient()
		rt := client.Realtime(nil)
		defer rt.Close()

		rt.OnStatusChange(func(s plume.Status) {
			fmt.Fprintf(os.Stderr, "-- connection %s\n", s)
		})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := rt.Connect(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}

		for _, room := range rooms {
			sub := rt.Join(room)
			defer sub.Release()

			room := room
			rt.SubscribeAll(room, func(ev plume.Event) {
				ts := ev.ServerTime
				if ts.IsZero() {
					ts = time.Now()
				}
				line := fmt.Sprintf("%s  %-24s %-22s", ts.Format("15:04:05"), ev.Room, ev.Type)
				if ev.OriginUserID != "" {
					line += "  from=" + ev.OriginUserID
				}
				if len(ev.Payload) > 0 {
					payload := string(ev.Payload)
					if len(payload) > 120 {
						payload = payload[:120] + "..."
					}
					line += "  " + payload
				}
				fmt.Println(line)
			})

			if tailShowPresence {
				watchRoomPresence(rt, room)
			}
		}

		fmt.Fprintf(os.Stderr, "-- tailing %d room(s), Ctrl-C to stop\n", len(rooms))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Fprintln(os.Stderr, "-- closing")
		return nil
	},
}

func watchRoomPresence(rt *plume.Realtime, room plume.RoomKey) {
	presenceCh, cancelPresence := rt.WatchPresence(room)
	typingCh, cancelTyping := rt.WatchTyping(room)

	go func() {
		defer cancelPresence()
		defer cancelTyping()
		for {
			select {
			case entries, ok := <-presenceCh:
				if !ok {
					return
				}
				names := make([]string, 0, len(entries))
				for _, e := range entries {
					name := e.UserName
					if name == "" {
						name = e.UserID
					}
					names = append(names, fmt.Sprintf("%s(%s)", name, e.Status))
				}
				fmt.Fprintf(os.Stderr, "-- %s presence: [%s]\n", room, strings.Join(names, ", "))
			case entries, ok := <-typingCh:
				if !ok {
					return
				}
				if len(entries) == 0 {
					continue
				}
				names := make([]string, 0, len(entries))
				for _, e := range entries {
					name := e.UserName
					if name == "" {
						name = e.UserID
					}
					names = append(names, name)
				}
				fmt.Fprintf(os.Stderr, "-- %s typing: %s\n", room, strings.Join(names, ", "))
			}
		}
	}()
}
