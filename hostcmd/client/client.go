// Package client talks to the host command server of a running daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/BertoldVdb/PDAltMode/altmode"
	"github.com/BertoldVdb/PDAltMode/hostcmd"
)

type Client struct {
	client http.Client
	url    string

	user string
	pass string
}

func New(url string) *Client {
	return &Client{
		client: http.Client{
			Timeout: 10 * time.Second,
		},

		url: strings.TrimSuffix(url, "/"),
	}
}

// SetCredentials sets the basic auth pair used for write requests, as
// returned by hostcmd.Credentials.
func (c *Client) SetCredentials(user, pass string) {
	c.user = user
	c.pass = pass
}

func (c *Client) doReq(method string, endpoint string, body []byte) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewBuffer(body)
	}

	req, err := http.NewRequest(method, c.url+"/"+endpoint, rdr)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "text/plain")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("request error %s", resp.Status)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func (c *Client) getJSON(endpoint string, v interface{}) error {
	data, err := c.doReq(http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func portPath(port int, action string) string {
	p := "ports/" + strconv.Itoa(port)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) Ports() ([]hostcmd.PortSummary, error) {
	var list []hostcmd.PortSummary
	if err := c.getJSON("ports", &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) Port(port int) (altmode.PortStatus, error) {
	var st altmode.PortStatus
	err := c.getJSON(portPath(port, ""), &st)
	return st, err
}

func (c *Client) MFAllow(port int) (bool, error) {
	var st hostcmd.MFAllowState
	if err := c.getJSON(portPath(port, "mfallow"), &st); err != nil {
		return false, err
	}
	return st.MFAllow, nil
}

func (c *Client) SetMFAllow(port int, allow bool) error {
	_, err := c.doReq(http.MethodPost, portPath(port, "mfallow"), []byte(strconv.FormatBool(allow)))
	return err
}

// Exit asks the daemon to leave the alternate modes of port.
func (c *Client) Exit(port int) error {
	_, err := c.doReq(http.MethodPost, portPath(port, "exit"), []byte{})
	return err
}

// Discover browses for a daemon and returns its base URL. An empty name
// accepts the first instance found.
func Discover(ctx context.Context, name string) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", err
	}

	results := make(chan *zeroconf.ServiceEntry)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	go func() {
		if err := resolver.Browse(ctx, hostcmd.ServiceType, "local", results); err != nil {
			return
		}
		<-ctx.Done()
	}()

	for m := range results {
		if name != "" && m.Instance != name {
			continue
		}

		var addr string
		if len(m.AddrIPv4) > 0 {
			addr = m.AddrIPv4[0].String()
		}
		if len(m.AddrIPv6) > 0 && addr == "" {
			addr = "[" + m.AddrIPv6[0].String() + "]"
		}
		if addr == "" {
			continue
		}

		return fmt.Sprintf("http://%s:%d", addr, m.Port), nil
	}

	return "", errors.New("no results")
}
