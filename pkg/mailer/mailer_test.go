package mailer

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidates(t *testing.T) {
	_, err := New(Config{From: "alerts@roomviz.app"})
	assert.Error(t, err)
	_, err = New(Config{Host: "smtp.example.com"})
	assert.Error(t, err)

	m, err := New(Config{Host: "smtp.example.com", From: "alerts@roomviz.app"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, m.cfg.Timeout)
	assert.Equal(t, "587", m.cfg.Port)
}

func TestSendEmail(t *testing.T) {
	m, err := New(Config{Host: "smtp.example.com", Username: "u", Password: "p", From: "alerts@roomviz.app"})
	require.NoError(t, err)

	var gotAddr string
	var gotTo []string
	var gotMsg string
	m.send = func(_ context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.NotNil(t, a)
		assert.Equal(t, "alerts@roomviz.app", from)
		return nil
	}

	require.NoError(t, m.SendEmail(context.Background(), "ops@roomviz.app", "Credit deduction failed\r\nBcc: x", "user u1"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"ops@roomviz.app"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Credit deduction failed  Bcc: x\r\n")
	assert.Contains(t, gotMsg, "text/plain")
	assert.False(t, strings.Contains(gotMsg, "\nBcc:"))
}

func TestSendEmailErrors(t *testing.T) {
	m, err := New(Config{Host: "smtp.example.com", From: "alerts@roomviz.app"})
	require.NoError(t, err)
	m.send = func(context.Context, string, smtp.Auth, string, []string, []byte) error {
		return errors.New("dial tcp: refused")
	}

	assert.Error(t, m.SendEmail(context.Background(), "", "s", "b"))
	assert.ErrorContains(t, m.SendEmail(context.Background(), "ops@roomviz.app", "s", "<p>b</p>"), "failed to send email")
}

// serveSMTP answers one session with a minimal SMTP dialogue and returns the
// DATA payload on the channel.
func serveSMTP(t *testing.T) (host, port string, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

		reply("220 relay.test ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250 relay.test")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				reply("250 OK")
			case cmd == "DATA":
				reply("354 go ahead")
				var body strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					body.WriteString(l)
				}
				out <- body.String()
				reply("250 queued")
			case cmd == "QUIT":
				reply("221 bye")
				return
			default:
				reply("502 not implemented")
			}
		}
	}()

	host, port, err = net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return host, port, out
}

func TestSendEmailOverSMTP(t *testing.T) {
	host, port, data := serveSMTP(t)
	m, err := New(Config{Host: host, Port: port, From: "alerts@roomviz.app", Timeout: 2 * time.Second})
	require.NoError(t, err)

	require.NoError(t, m.SendEmail(context.Background(), "ops@roomviz.app", "Billing event dropped", "evt_1"))
	select {
	case got := <-data:
		assert.Contains(t, got, "Subject: Billing event dropped\r\n")
		assert.Contains(t, got, "evt_1")
	case <-time.After(2 * time.Second):
		t.Fatal("relay never received the message")
	}
}

// silentRelay accepts connections and never writes a byte.
func silentRelay(t *testing.T) (host, port string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var conns []net.Conn
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		<-done
		for _, c := range conns {
			c.Close()
		}
	})
	host, port, err = net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return host, port
}

func TestSendEmailTimesOutOnSilentRelay(t *testing.T) {
	host, port := silentRelay(t)
	m, err := New(Config{Host: host, Port: port, From: "alerts@roomviz.app", Timeout: 200 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	err = m.SendEmail(context.Background(), "ops@roomviz.app", "Credit deduction failed", "user u1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSendEmailStopsWhenContextIsCancelled(t *testing.T) {
	host, port := silentRelay(t)
	m, err := New(Config{Host: host, Port: port, From: "alerts@roomviz.app", Timeout: time.Minute})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = m.SendEmail(ctx, "ops@roomviz.app", "Credit deduction failed", "user u1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
