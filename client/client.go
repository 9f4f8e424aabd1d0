// Package client talks to the sync server.
package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	addr   string
	dialer *net.Dialer
}

func New(addr string) *Client {
	return &Client{
		addr: addr,
		dialer: &net.Dialer{
			Timeout: time.Second * 10,
		},
	}
}

// Send writes lines as one request terminated by a blank line and returns
// the number of lines the server acknowledged.
func (c *Client) Send(ctx context.Context, lines []string) (int, error) {
	for _, line := range lines {
		if line == "" || strings.ContainsAny(line, "\r\n") {
			return 0, fmt.Errorf("invalid request line %q", line)
		}
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return 0, fmt.Errorf("connecting to %s: %w", c.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return 0, err
		}
	}

	w := bufio.NewWriter(conn)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	w.WriteByte('\n')
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}

	resp, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("reading response: %w", err)
	}
	resp = strings.TrimSpace(resp)
	if reason, ok := strings.CutPrefix(resp, "error "); ok {
		return 0, fmt.Errorf("server rejected request: %s", reason)
	}
	count, ok := strings.CutPrefix(resp, "ok ")
	if !ok {
		return 0, fmt.Errorf("unexpected response: %q", resp)
	}
	n, err := strconv.Atoi(count)
	if err != nil {
		return 0, fmt.Errorf("unexpected response: %q", resp)
	}
	return n, nil
}
