// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/config"
	"github.com/edgeo-scada/opcua-typesys/memspace"
)

var errNoSnapshot = errors.New("no address space: pass --snapshot or set server.snapshot")

// newLogger builds a JSON logger, or a console logger when pretty output
// is configured.
func newLogger(w io.Writer, cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("app", "edgeo-opcua").Logger(), nil
}

// openSpace loads the snapshot into a fresh address space and returns a
// client bound to it.
func (g *globals) openSpace() (*memspace.Space, *opcua.Client, error) {
	space, err := g.loadSpace()
	if err != nil {
		return nil, nil, err
	}
	client, err := g.newClient(space)
	if err != nil {
		return nil, nil, err
	}
	return space, client, nil
}

func (g *globals) loadSpace(opts ...memspace.Option) (*memspace.Space, error) {
	if g.snapshot == "" {
		return nil, errNoSnapshot
	}
	snap, err := memspace.LoadSnapshotFile(g.snapshot)
	if err != nil {
		return nil, err
	}
	space := memspace.New(append([]memspace.Option{memspace.WithLogger(g.logger)}, opts...)...)
	if err := space.Apply(snap); err != nil {
		return nil, err
	}
	return space, nil
}

func (g *globals) newClient(t opcua.Transporter, opts ...opcua.Option) (*opcua.Client, error) {
	client, err := opcua.NewClient(t, append([]opcua.Option{
		opcua.WithTimeout(g.timeout),
		opcua.WithLogger(g.logger),
	}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func (g *globals) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.timeout)
}

// parseTypeName resolves a built-in type given by name ("Double") or
// number ("11").
func parseTypeName(name string) (opcua.TypeID, error) {
	if t, ok := opcua.TypeIDByName(name); ok && t != opcua.TypeNull {
		return t, nil
	}
	var n uint8
	if _, err := fmt.Sscanf(name, "%d", &n); err == nil && opcua.TypeID(n).IsBuiltin() {
		return opcua.TypeID(n), nil
	}
	return opcua.TypeNull, fmt.Errorf("unknown built-in type %q", name)
}

func printDataValue(w io.Writer, label string, dv opcua.DataValue) {
	fmt.Fprintf(w, "%s\n", label)
	if dv.StatusCode.IsBad() {
		fmt.Fprintf(w, "  Status: %s\n", dv.StatusCode.String())
		return
	}
	printVariant(w, dv.Value)
	if !dv.SourceTimestamp.IsZero() {
		fmt.Fprintf(w, "  SourceTimestamp: %s\n", dv.SourceTimestamp.Format(time.RFC3339Nano))
	}
	if !dv.ServerTimestamp.IsZero() {
		fmt.Fprintf(w, "  ServerTimestamp: %s\n", dv.ServerTimestamp.Format(time.RFC3339Nano))
	}
	fmt.Fprintf(w, "  Status: %s\n", dv.StatusCode.String())
}

func printVariant(w io.Writer, v *opcua.Variant) {
	if v == nil || v.Value == nil {
		fmt.Fprintf(w, "  Value: <null>\n")
		return
	}
	fmt.Fprintf(w, "  Value: %v\n", v.Value)
	fmt.Fprintf(w, "  Type: %s\n", v.Type)
}
