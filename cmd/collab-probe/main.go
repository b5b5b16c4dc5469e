// collab-probe joins a document as a synthetic collaborator and prints
// everything the room broadcasts. Useful for poking a running relay from
// the command line.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/client"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
)

func main() {
	url := flag.String("url", "ws://localhost:5000", "relay base URL")
	document := flag.Int("document", 0, "document id to join")
	user := flag.Int("user", 0, "user id to join as")
	name := flag.String("name", "probe", "username to join as")
	say := flag.String("say", "", "optional comment to post after joining")
	flag.Parse()

	if *document == 0 || *user == 0 {
		fmt.Fprintln(os.Stderr, "usage: collab-probe -document <id> -user <id> [-url ws://...] [-name probe] [-say text]")
		os.Exit(2)
	}

	c, err := client.Dial(client.Config{
		URL:        *url,
		DocumentID: *document,
		UserID:     *user,
		Username:   *name,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	sub := c.Subscribe("", func(update message.ContentUpdate) {
		fmt.Printf("[%s] %s edited %s: %s\n",
			update.Timestamp.Format(time.TimeOnly), update.Username, update.Section, update.Content)
	})
	defer sub.Cancel()

	// give the session-info snapshot a moment to arrive
	time.Sleep(500 * time.Millisecond)
	fmt.Printf("joined document %d as %s\n", *document, *name)
	for _, u := range c.ActiveUsers() {
		fmt.Printf("  present: %s (%d)\n", u.Username, u.UserID)
	}

	if *say != "" {
		if err := c.AddComment("summary", *say); err != nil {
			fmt.Fprintf(os.Stderr, "comment failed: %v\n", err)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			fmt.Println("leaving")
			return
		case <-ticker.C:
			fmt.Printf("present=%d comments=%d cursors=%d\n",
				len(c.ActiveUsers()), len(c.Comments()), len(c.Cursors()))
		}
	}
}
