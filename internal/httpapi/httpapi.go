// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The OpenLumen Authors

// Package httpapi exposes the node's configuration and status over HTTP.
// It mutates settings through the exact same entry points as the serial
// bridge, so the two ingress paths can never disagree. The framed control
// protocol itself is also reachable here, as a WebSocket binary stream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openlumen/lumend/internal/bridge"
	"github.com/openlumen/lumend/internal/conn"
	"github.com/openlumen/lumend/internal/network"
	"github.com/openlumen/lumend/internal/node"
	"github.com/openlumen/lumend/internal/settings"
)

// Server serves the configuration API for one node.
type Server struct {
	node     *node.Node
	router   chi.Router
	upgrader websocket.Upgrader
}

// NewServer builds the router around the given node.
func NewServer(n *node.Node) *Server {
	s := &Server{
		node: n,
		upgrader: websocket.Upgrader{
			// The node is operated on a trusted network segment.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Post("/mode", s.handleSetMode)
		r.Post("/reset", s.handleFactoryReset)
		r.Post("/restart", s.handleRestart)
		r.Post("/reconnect", s.handleReconnect)
		r.Get("/control", s.handleControlSocket)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves on addr until ctx is canceled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("http api listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusReport is the GET /api/status body.
type statusReport struct {
	Network       network.Status  `json:"network"`
	Mode          string          `json:"mode"`
	Brightness    uint8           `json:"brightness"`
	SafeMode      bool            `json:"safeMode"`
	UptimeSeconds uint32          `json:"uptimeSeconds"`
	ArtNet        json.RawMessage `json:"artnet"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := json.Marshal(s.node.ArtNetStats())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	v := s.node.Settings().Snapshot()
	writeJSON(w, http.StatusOK, statusReport{
		Network:       s.node.Network().Snapshot(),
		Mode:          v.Mode.String(),
		Brightness:    v.Brightness,
		SafeMode:      s.node.SafeMode(),
		UptimeSeconds: uint32(s.node.Uptime() / time.Second),
		ArtNet:        stats,
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Settings().Snapshot())
}

// settingsPatch is the PUT /api/settings body; absent fields are left
// unchanged.
type settingsPatch struct {
	SSID         *string       `json:"ssid"`
	Password     *string       `json:"password"`
	WiFiEnabled  *bool         `json:"wifiEnabled"`
	APFallback   *bool         `json:"apFallback"`
	DeviceName   *string       `json:"deviceName"`
	Universe     *uint16       `json:"universe"`
	Brightness   *uint8        `json:"brightness"`
	StaticColor  *settings.RGB `json:"staticColor"`
	Effect       *uint8        `json:"effect"`
	EffectSpeed  *uint8        `json:"effectSpeed"`
	Pins         *[]int        `json:"pins"`
	StripCount   *uint16       `json:"stripCount"`
	LedsPerStrip *uint16       `json:"ledsPerStrip"`
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var p settingsPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	mgr := s.node.Settings()
	cur := mgr.Snapshot()

	apply := func(err error) bool {
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return false
		}
		return true
	}

	if p.SSID != nil || p.Password != nil {
		ssid, password := cur.SSID, cur.Password
		if p.SSID != nil {
			ssid = *p.SSID
		}
		if p.Password != nil {
			password = *p.Password
		}
		if !apply(mgr.SetCredentials(ssid, password)) {
			return
		}
	}
	if p.WiFiEnabled != nil && !apply(mgr.SetWiFiEnabled(*p.WiFiEnabled)) {
		return
	}
	if p.APFallback != nil && !apply(mgr.SetAPFallback(*p.APFallback)) {
		return
	}
	if p.DeviceName != nil && !apply(mgr.SetDeviceName(*p.DeviceName)) {
		return
	}
	if p.Universe != nil && !apply(s.node.SetUniverse(*p.Universe)) {
		return
	}
	if p.Brightness != nil && !apply(mgr.SetBrightness(*p.Brightness)) {
		return
	}
	if p.StaticColor != nil && !apply(s.node.SetStaticColor(*p.StaticColor)) {
		return
	}
	if p.Effect != nil || p.EffectSpeed != nil {
		effect, speed := cur.Effect, cur.EffectSpeed
		if p.Effect != nil {
			effect = settings.Effect(*p.Effect)
		}
		if p.EffectSpeed != nil {
			speed = *p.EffectSpeed
		}
		if !apply(s.node.SetEffect(effect, speed)) {
			return
		}
	}
	if p.Pins != nil || p.StripCount != nil || p.LedsPerStrip != nil {
		pins, strips, leds := cur.Pins, cur.StripCount, cur.LedsPerStrip
		if p.Pins != nil {
			pins = *p.Pins
		}
		if p.StripCount != nil {
			strips = *p.StripCount
		}
		if p.LedsPerStrip != nil {
			leds = *p.LedsPerStrip
		}
		if !apply(s.node.SetTopology(pins, strips, leds)) {
			return
		}
	}

	writeJSON(w, http.StatusOK, mgr.Snapshot())
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	mode, err := settings.ParseMode(body.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.node.SetMode(mode); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": mode.String()})
}

func (s *Server) handleFactoryReset(w http.ResponseWriter, r *http.Request) {
	if err := s.node.FactoryReset(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "resetting"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.node.RequestRestart()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restarting"})
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	s.node.Network().RequestReconnect()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnecting"})
}

// handleControlSocket runs the framed control protocol over a WebSocket
// binary stream, sharing the command surface with the serial bridge.
func (s *Server) handleControlSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("control socket upgrade failed")
		return
	}

	b := bridge.New(conn.WrapWebSocket(ws), nil, s.node.Status, s.node.RequestRestart, s.node.HandleCommand)
	if err := b.Run(r.Context()); err != nil &&
		!errors.Is(err, context.Canceled) &&
		!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
		!errors.Is(err, net.ErrClosed) {
		log.Debug().Err(err).Msg("control socket closed")
	}
}
