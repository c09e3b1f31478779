// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bureau-foundation/fingerd/lib/clock"
	"github.com/bureau-foundation/fingerd/lib/codec"
	"github.com/bureau-foundation/fingerd/lib/config"
	"github.com/bureau-foundation/fingerd/lib/finger"
	"github.com/bureau-foundation/fingerd/lib/scenario"
	"github.com/bureau-foundation/fingerd/lib/service"
	"github.com/bureau-foundation/fingerd/lib/version"
)

// Control socket actions.
const (
	actionStatus = "status"
	actionUsers  = "users"
)

// addrLister is the part of *server.Server the controller needs.
type addrLister interface {
	Addrs() []net.Addr
}

// controller answers control socket requests about a running daemon.
type controller struct {
	hostname   string
	ifaceType  string
	server     addrLister
	iface      finger.Interface
	simulation *scenario.Interface
	clock      clock.Clock
	started    time.Time
}

func newController(cfg *config.Config, server addrLister, simulation *scenario.Interface, clk clock.Clock) *controller {
	var iface finger.Interface = finger.BaseInterface{}
	if simulation != nil {
		iface = simulation
	}
	return &controller{
		hostname:   cfg.Hostname,
		ifaceType:  cfg.Interface.Type,
		server:     server,
		iface:      iface,
		simulation: simulation,
		clock:      clk,
		started:    clk.Now(),
	}
}

func (c *controller) register(socketServer *service.SocketServer) {
	socketServer.Handle(actionStatus, c.handleStatus)
	socketServer.Handle(actionUsers, c.handleUsers)
}

// statusResponse is the reply to the status action.
type statusResponse struct {
	Hostname      string           `cbor:"hostname"`
	Version       string           `cbor:"version"`
	UptimeSeconds float64          `cbor:"uptime_seconds"`
	Addresses     []string         `cbor:"addresses"`
	Interface     string           `cbor:"interface"`
	Scenario      *scenario.Status `cbor:"scenario,omitempty"`
}

func (c *controller) handleStatus(ctx context.Context, raw []byte) (any, error) {
	response := statusResponse{
		Hostname:      c.hostname,
		Version:       version.Info(),
		UptimeSeconds: c.clock.Now().Sub(c.started).Seconds(),
		Addresses:     addrStrings(c.server.Addrs()),
		Interface:     c.ifaceType,
	}
	if c.simulation != nil {
		status := c.simulation.Status()
		response.Scenario = &status
	}
	return response, nil
}

// usersRequest filters the users action. Both fields are optional.
type usersRequest struct {
	Login    string `cbor:"login"`
	Activity string `cbor:"activity"`
}

// userSummary is one entry of the users reply.
type userSummary struct {
	Login     string    `cbor:"login"`
	Name      string    `cbor:"name"`
	Sessions  int       `cbor:"sessions"`
	LastLogin time.Time `cbor:"last_login"`
}

func (c *controller) handleUsers(ctx context.Context, raw []byte) (any, error) {
	var request usersRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid users request: %w", err)
	}
	activity, err := parseActivity(request.Activity)
	if err != nil {
		return nil, err
	}

	users, err := c.iface.SearchUsers(ctx, request.Login, activity)
	if err != nil {
		return nil, err
	}
	summaries := make([]userSummary, 0, len(users))
	for _, user := range users {
		summaries = append(summaries, userSummary{
			Login:     user.Login,
			Name:      user.Name,
			Sessions:  len(user.Sessions),
			LastLogin: user.LastLogin,
		})
	}
	return summaries, nil
}

func parseActivity(text string) (finger.Activity, error) {
	for _, activity := range []finger.Activity{finger.AnyActivity, finger.ActiveOnly, finger.InactiveOnly} {
		if text == activity.String() {
			return activity, nil
		}
	}
	if text == "" {
		return finger.AnyActivity, nil
	}
	return finger.AnyActivity, fmt.Errorf("unknown activity %q (want any, active or inactive)", text)
}

func addrStrings(addrs []net.Addr) []string {
	result := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		result = append(result, addr.String())
	}
	return result
}
