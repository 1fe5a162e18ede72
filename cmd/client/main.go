package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-docsync/internal/client"
	"github.com/npezzotti/go-docsync/internal/types"
)

const usage = `commands:
  /cursor <pos> [start end]  publish the caret position
  /users                     request a roster resync
  /show                      print the document and roster
  /quit                      disconnect
any other line replaces the document`

var (
	serverURL string
	roomId    string
	userId    string
	username  string
	token     string
)

func printState(c *client.Conn) {
	doc := c.Document()
	fmt.Printf("version %d (%s)\n%s\n", doc.Version, doc.Hash, doc.Content)
	for _, p := range c.Users() {
		pos := "-"
		if p.Position != nil {
			pos = strconv.Itoa(*p.Position)
		}
		fmt.Printf("  %s %s %s (%s) cursor %s\n", p.Icon, p.Color, p.Username, p.UserId, pos)
	}
}

func printEvent(msg types.Outbound) {
	switch msg.Type {
	case types.MessageTypeContent:
		note := ""
		if msg.Conflict {
			note = " (conflict)"
		}
		fmt.Printf("* version %d from %q%s: %s\n", *msg.Version, msg.UserId, note, *msg.Content)
	case types.MessageTypeJoin:
		fmt.Printf("* %s joined\n", msg.Username)
	case types.MessageTypeLeave:
		fmt.Printf("* %s left\n", msg.Username)
	case types.MessageTypeCursor:
		if msg.Position != nil {
			fmt.Printf("* %s moved to %d\n", msg.Username, *msg.Position)
		}
	case types.MessageTypeUsers:
		fmt.Printf("* %d users online\n", len(msg.Users))
	}
}

func parseCursor(args []string) (int, *int, *int, error) {
	if len(args) != 1 && len(args) != 3 {
		return 0, nil, nil, fmt.Errorf("usage: /cursor <pos> [start end]")
	}

	nums := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("invalid offset %q", a)
		}
		nums[i] = n
	}

	if len(nums) == 3 {
		return nums[0], &nums[1], &nums[2], nil
	}
	return nums[0], nil, nil, nil
}

func handleLine(c *client.Conn, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return true, c.SubmitContent(line)
	}

	switch fields[0] {
	case "/cursor":
		pos, start, end, err := parseCursor(fields[1:])
		if err != nil {
			return true, err
		}
		return true, c.SendCursor(pos, start, end)
	case "/users":
		return true, c.RequestResync()
	case "/show":
		printState(c)
		return true, nil
	case "/quit":
		return false, nil
	default:
		fmt.Println(usage)
		return true, nil
	}
}

func main() {
	flag.StringVar(&serverURL, "url", "ws://localhost:8000", "sync server url")
	flag.StringVar(&roomId, "room", "default", "document id to join")
	flag.StringVar(&userId, "user-id", "", "requested user id, generated by the server if empty or taken")
	flag.StringVar(&username, "username", "", "display name")
	flag.StringVar(&token, "token", "", "signed token carrying the display name")
	flag.Parse()

	logger := log.New(os.Stderr, "[go-docsync-client] ", log.LstdFlags)

	var header http.Header
	if token != "" {
		header = http.Header{"Cookie": {"token=" + token}}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	c, err := client.Dial(ctx, serverURL, roomId, types.User{Id: userId, Username: username}, header, logger)
	cancel()
	if err != nil {
		logger.Fatal(err)
	}
	defer c.Close()

	go func() {
		for msg := range c.Events() {
			printEvent(msg)
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println(usage)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			more, err := handleLine(c, line)
			if err != nil {
				logger.Println(err)
			}
			if !more {
				return
			}
		case <-c.Done():
			logger.Println("disconnected")
			return
		case sig := <-sigs:
			logger.Printf("received signal: %s\n", sig)
			return
		}
	}
}
