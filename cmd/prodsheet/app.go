package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zenibako/prodsheet-golang/config"
	"github.com/zenibako/prodsheet-golang/sheet"
	"github.com/zenibako/prodsheet-golang/store"
	"github.com/zenibako/prodsheet-golang/syncstore"
)

// App carries the flags and configuration shared by every command.
type App struct {
	cfg        config.Config
	ordersPath string
	session    sheet.SessionID
	localOnly  bool
}

func newApp() *App {
	now := time.Now()
	year, week := now.ISOWeek()
	return &App{
		cfg: config.Load(),
		session: sheet.SessionID{
			Week: week,
			Year: year,
			Day:  strings.ToLower(now.Weekday().String()),
		},
	}
}

func (a *App) configureLogging() {
	level, err := log.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		log.Warn("Unknown log level, using info", "level", a.cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// loadOrders reads the upstream orders, a JSON array of orders, from path
// or stdin when path is "-".
func loadOrders(path string) ([]sheet.Order, error) {
	if path == "" {
		return nil, fmt.Errorf("no orders file given, use --orders")
	}
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open orders: %w", err)
		}
		defer f.Close()
		r = f
	}
	var orders []sheet.Order
	if err := json.NewDecoder(r).Decode(&orders); err != nil {
		return nil, fmt.Errorf("failed to parse orders: %w", err)
	}
	return orders, nil
}

// session bundles an opened editor with the resources it holds.
type session struct {
	editor  *sheet.Editor
	adapter *syncstore.RedisAdapter
	closers []io.Closer
}

func (s *session) Close() {
	s.editor.Close()
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			log.Warn("Close failed", "error", err)
		}
	}
}

// openSession wires the local store, the optional Redis adapter and the
// editor, and opens the editor on the current orders.
func (a *App) openSession(ctx context.Context) (*session, error) {
	orders, err := loadOrders(a.ordersPath)
	if err != nil {
		return nil, err
	}
	if err := a.session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session %s: %w", a.session, err)
	}

	s := &session{}
	local, err := store.Open(a.cfg.Store, a.cfg.StorePath)
	if err != nil {
		return nil, err
	}
	if c, ok := local.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}

	var adapter sheet.SyncAdapter
	if a.cfg.RedisURL != "" && !a.localOnly {
		redisAdapter, err := syncstore.NewRedisAdapter(a.cfg.RedisURL, a.session)
		if err != nil {
			log.Warn("Sync store unavailable, working locally", "error", err)
		} else {
			redisAdapter.SetAuthor(a.cfg.Author)
			redisAdapter.SetPresenceTTL(a.cfg.PresenceTTL)
			s.adapter = redisAdapter
			s.closers = append(s.closers, redisAdapter)
			adapter = redisAdapter
		}
	}

	editor := sheet.NewEditor(a.session, local, adapter)
	editor.SetAuthor(a.cfg.Author)
	editor.SetUsableHeight(a.cfg.UsableHeight())
	editor.SetMeasurer(sheet.NewTextMeasurer(a.cfg.ContentWidth()))
	editor.SetRetryPolicy(a.cfg.RetryPolicy())
	s.editor = editor

	if err := editor.Open(ctx, orders); err != nil {
		s.Close()
		return nil, err
	}
	if s.adapter != nil {
		if err := s.adapter.Heartbeat(ctx); err != nil {
			log.Debug("Heartbeat failed", "error", err)
		}
	}
	return s, nil
}
