package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/config"
)

func main() {
	addrFlag := flag.String("addr", config.DefaultListenAddr, "daemon address")
	userFlag := flag.String("user", "", "acting user id (a token is minted automatically)")
	tokenFlag := flag.String("token", "", "bearer token (overrides --user)")
	jsonFlag := flag.Bool("json", false, "output raw JSON")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := &client{base: "http://" + *addrFlag, token: *tokenFlag}
	if c.token == "" && *userFlag != "" {
		token, err := c.mintToken(ctx, *userFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: mint token: %v\n", err)
			os.Exit(1)
		}
		c.token = token
	}

	var err error
	switch args[0] {
	case "token":
		err = cmdToken(ctx, c, args[1:])
	case "send":
		err = cmdSend(ctx, c, args[1:])
	case "chats":
		err = c.getAndPrint(ctx, "/api/chats", *jsonFlag)
	case "history":
		err = cmdHistory(ctx, c, args[1:], *jsonFlag)
	case "open":
		err = requireArg(args[1:], "open <chat-id>", func(id string) error {
			return c.do(ctx, http.MethodPost, "/api/chats/"+id+"/open", nil, nil)
		})
	case "delete-chat":
		err = requireArg(args[1:], "delete-chat <chat-id>", func(id string) error {
			return c.do(ctx, http.MethodDelete, "/api/chats/"+id, nil, nil)
		})
	case "clear":
		err = requireArg(args[1:], "clear <chat-id>", func(id string) error {
			return c.do(ctx, http.MethodPost, "/api/chats/"+id+"/clear", nil, nil)
		})
	case "delete-message":
		if len(args) < 3 {
			err = fmt.Errorf("usage: pingmectl delete-message <chat-id> <message-id>")
		} else {
			err = c.do(ctx, http.MethodDelete, "/api/chats/"+args[1]+"/messages/"+args[2], nil, nil)
		}
	case "presence":
		err = requireArg(args[1:], "presence <user-id>", func(id string) error {
			return c.getAndPrint(ctx, "/api/users/"+id+"/presence", *jsonFlag)
		})
	case "privacy":
		err = cmdPrivacy(ctx, c, args[1:], *jsonFlag)
	case "block":
		err = requireArg(args[1:], "block <user-id>", func(id string) error {
			return c.do(ctx, http.MethodPost, "/api/blocks/"+id, nil, nil)
		})
	case "unblock":
		err = requireArg(args[1:], "unblock <user-id>", func(id string) error {
			return c.do(ctx, http.MethodDelete, "/api/blocks/"+id, nil, nil)
		})
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func requireArg(args []string, usage string, fn func(string) error) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: pingmectl %s", usage)
	}
	return fn(args[0])
}

func cmdToken(ctx context.Context, c *client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: pingmectl token <user-id> [display-name]")
	}
	name := args[0]
	if len(args) > 1 {
		name = strings.Join(args[1:], " ")
	}
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"user_id": args[0], "display_name": name}
	if err := c.do(ctx, http.MethodPost, "/api/token", body, &resp); err != nil {
		return err
	}
	fmt.Println(resp.Token)
	return nil
}

func cmdSend(ctx context.Context, c *client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: pingmectl send <recipient-id> <body...>")
	}
	body := map[string]string{
		"recipient_id": args[0],
		"body":         strings.Join(args[1:], " "),
	}
	var msg map[string]any
	if err := c.do(ctx, http.MethodPost, "/api/messages", body, &msg); err != nil {
		return err
	}
	fmt.Printf("sent %v in chat %v\n", msg["id"], msg["chat_id"])
	return nil
}

func cmdHistory(ctx context.Context, c *client, args []string, raw bool) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: pingmectl history <chat-id> [before-ts]")
	}
	path := "/api/chats/" + args[0] + "/messages"
	if len(args) > 1 {
		path += "?before=" + args[1]
	}
	return c.getAndPrint(ctx, path, raw)
}

func cmdPrivacy(ctx context.Context, c *client, args []string, raw bool) error {
	if len(args) == 0 || args[0] == "get" {
		return c.getAndPrint(ctx, "/api/privacy", raw)
	}
	if args[0] != "set" || len(args) < 4 {
		return fmt.Errorf("usage: pingmectl privacy set <read-receipts> <last-seen> <notifications> (true/false each)")
	}
	body := map[string]bool{
		"read_receipts_enabled": args[1] == "true",
		"last_seen_enabled":     args[2] == "true",
		"notifications_enabled": args[3] == "true",
	}
	return c.do(ctx, http.MethodPut, "/api/privacy", body, nil)
}

type client struct {
	base  string
	token string
}

func (c *client) mintToken(ctx context.Context, userID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"user_id": userID, "display_name": userID}
	if err := c.do(ctx, http.MethodPost, "/api/token", body, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *client) getAndPrint(ctx context.Context, path string, raw bool) error {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return err
	}
	if raw {
		fmt.Println(string(out))
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, out, "", "  "); err != nil {
		fmt.Println(string(out))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: pingmectl [--addr <host:port>] [--user <id> | --token <jwt>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  token <user-id> [name]                Mint a bearer token")
	fmt.Fprintln(os.Stderr, "  send <recipient-id> <body...>         Send a message")
	fmt.Fprintln(os.Stderr, "  chats                                 List chats with unread counts")
	fmt.Fprintln(os.Stderr, "  history <chat-id> [before-ts]         Show chat history")
	fmt.Fprintln(os.Stderr, "  open <chat-id>                        Open a chat (marks it read)")
	fmt.Fprintln(os.Stderr, "  delete-chat <chat-id>                 Delete the chat for this user")
	fmt.Fprintln(os.Stderr, "  clear <chat-id>                       Clear chat history for this user")
	fmt.Fprintln(os.Stderr, "  delete-message <chat-id> <msg-id>     Delete one message for this user")
	fmt.Fprintln(os.Stderr, "  presence <user-id>                    Show presence and last seen")
	fmt.Fprintln(os.Stderr, "  privacy [get|set <rr> <ls> <notif>]   Show or update privacy settings")
	fmt.Fprintln(os.Stderr, "  block <user-id> / unblock <user-id>   Manage blocks")
}
