// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package alerting

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/sharesync/internal/config"
)

// fakeSMTP accepts one message and sends it on the returned channel.
func fakeSMTP(t *testing.T) (host string, port int, messages <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

		r := bufio.NewReader(conn)
		reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
		reply("220 fake ESMTP")

		var data strings.Builder
		inData := false
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if inData {
				if line == ".\r\n" {
					inData = false
					out <- data.String()
					reply("250 queued")
					continue
				}
				data.WriteString(line)
				continue
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250 fake")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				reply("250 ok")
			case cmd == "DATA":
				inData = true
				reply("354 go ahead")
			case cmd == "QUIT":
				reply("221 bye")
				return
			default:
				reply("250 ok")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, out
}

func TestEmailSink_Send(t *testing.T) {
	host, port, messages := fakeSMTP(t)

	sink := NewEmailSink(&config.AlertingConfig{
		SupportEmail: "support@osf.io",
		SMTP: config.SMTPConfig{
			Host: host,
			Port: port,
			From: "sharesync@localhost",
		},
	})
	if sink == nil {
		t.Fatal("NewEmailSink() returned nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Send(ctx, testAlert()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case msg := <-messages:
		for _, want := range []string{
			"To: support@osf.io",
			"Subject: SHARE preprint sync error: abc12",
			"HTTP status: 400",
		} {
			if !strings.Contains(msg, want) {
				t.Errorf("message missing %q:\n%s", want, msg)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no message delivered")
	}
}

func TestEmailSink_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	sink := NewEmailSink(&config.AlertingConfig{
		SupportEmail: "support@osf.io",
		SMTP:         config.SMTPConfig{Host: "127.0.0.1", Port: port, From: "x@y"},
	})
	if err := sink.Send(context.Background(), testAlert()); err == nil {
		t.Error("Send() to a closed port should fail")
	}
}

func TestEmailSink_BuildMessage(t *testing.T) {
	sink := NewEmailSink(&config.AlertingConfig{
		SupportEmail: "support@osf.io",
		SMTP:         config.SMTPConfig{Host: "mail", Port: 587, From: "sharesync@localhost"},
	})
	msg := sink.buildMessage(testAlert())
	if !strings.HasPrefix(msg, "From: ShareSync <sharesync@localhost>\r\n") {
		t.Errorf("message header = %q", msg[:60])
	}
	if !strings.Contains(msg, "X-ShareSync-Preprint: abc12\r\n") {
		t.Error("message missing preprint header")
	}
}
