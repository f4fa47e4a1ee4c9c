package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/adapter/observability"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/adapter/schema"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/config"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/fleet"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/usecase"
	"github.com/fairyhunter13/cs2-inspect-gateway/pkg/inspectlink"
)

// FleetControl is the slice of the fleet manager the HTTP layer needs:
// stats for /stats and reconnect commands for the admin surface.
type FleetControl interface {
	Stats() fleet.Snapshot
	ReconnectBot(username string)
	ReconnectAll()
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Inspect    *usecase.InspectService
	Fleet      FleetControl
	Schema     *schema.Schema
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error

	startedAt time.Time
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, inspect *usecase.InspectService, fl FleetControl, sch *schema.Schema, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{
		Cfg:        cfg,
		Inspect:    inspect,
		Fleet:      fl,
		Schema:     sch,
		DBCheck:    dbCheck,
		RedisCheck: redisCheck,
		startedAt:  time.Now(),
	}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// itemPayload is the wire shape of one inspected item: the raw transport
// attributes plus resolved display names.
type itemPayload struct {
	domain.ItemInfo
	UniqueID     string `json:"uniqueid"`
	WeaponName   string `json:"weapon_type,omitempty"`
	PaintName    string `json:"item_name,omitempty"`
	WearName     string `json:"wear_name,omitempty"`
	RarityName   string `json:"rarity_name,omitempty"`
	OriginName   string `json:"origin_name,omitempty"`
	FullItemName string `json:"full_item_name,omitempty"`
}

func (s *Server) itemPayloadOf(info domain.ItemInfo) itemPayload {
	p := itemPayload{ItemInfo: info, UniqueID: info.UniqueID()}
	if s.Schema == nil {
		return p
	}
	p.WeaponName = s.Schema.WeaponName(info.DefIndex)
	if info.PaintIndex != nil {
		p.PaintName = s.Schema.PaintName(*info.PaintIndex)
	}
	if info.PaintWear != nil {
		p.WearName = schema.WearName(*info.PaintWear)
	}
	if info.Rarity != nil {
		p.RarityName = s.Schema.RarityName(*info.Rarity)
	}
	if info.Origin != nil {
		p.OriginName = s.Schema.OriginName(*info.Origin)
	}
	p.FullItemName = s.Schema.ItemName(&info)
	return p
}

// parseDescriptor accepts either url= (a full inspect link or its bare
// payload) or the individual s/a/d/m query parameters, plus the
// refresh/reply/lowPriority flags.
func parseDescriptor(r *http.Request) (domain.InspectDescriptor, error) {
	q := r.URL.Query()
	var d domain.InspectDescriptor
	if raw := q.Get("url"); raw != "" {
		link, err := inspectlink.Parse(raw)
		if err != nil {
			if link, err = inspectlink.ParsePayload(raw); err != nil {
				return d, fmt.Errorf("%w: %v", domain.ErrBadDescriptor, err)
			}
		}
		d.S, d.A, d.D, d.M = link.S, link.A, link.D, link.M
	} else {
		var err error
		if d.S, err = uintParam(q.Get("s")); err != nil {
			return d, fmt.Errorf("%w: s: %v", domain.ErrBadDescriptor, err)
		}
		if d.A, err = uintParam(q.Get("a")); err != nil {
			return d, fmt.Errorf("%w: a: %v", domain.ErrBadDescriptor, err)
		}
		if d.D, err = uintParam(q.Get("d")); err != nil {
			return d, fmt.Errorf("%w: d: %v", domain.ErrBadDescriptor, err)
		}
		if d.M, err = uintParam(q.Get("m")); err != nil {
			return d, fmt.Errorf("%w: m: %v", domain.ErrBadDescriptor, err)
		}
	}
	d.Refresh = boolParam(q.Get("refresh"), false)
	d.Reply = boolParam(q.Get("reply"), true)
	lp := q.Get("lowPriority")
	if lp == "" {
		lp = q.Get("low_priority")
	}
	d.LowPriority = boolParam(lp, false)
	return d, d.Validate()
}

func uintParam(v string) (uint64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func boolParam(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// InspectHandler resolves one inspect descriptor. With reply=false the
// request is admitted and processed in the background.
func (s *Server) InspectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := parseDescriptor(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if !d.Reply {
			if err := s.Inspect.Submit(d); err != nil {
				writeError(w, r, err, nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"accepted": true,
				"assetId":  strconv.FormatUint(d.A, 10),
			})
			return
		}

		start := time.Now()
		info, err := s.Inspect.InspectItem(r.Context(), d)
		observability.ObserveInspect(outcomeOf(err), time.Since(start))
		if err != nil {
			LoggerFrom(r).Warn("inspect failed",
				"asset_id", d.A, "error", err)
			writeError(w, r, err, map[string]string{"asset_id": strconv.FormatUint(d.A, 10)})
			return
		}
		if info.PaintWear != nil {
			observability.ObservePaintWear(*info.PaintWear)
		}
		writeJSON(w, http.StatusOK, map[string]any{"iteminfo": s.itemPayloadOf(info)})
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrBadDescriptor):
		return "bad_descriptor"
	case errors.Is(err, domain.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, domain.ErrInspectTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrNoBotsReady):
		return "no_bots_ready"
	default:
		return "error"
	}
}

// StatsHandler returns the aggregated fleet snapshot.
func (s *Server) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := s.Fleet.Stats()
		observability.UpdateFleetGauges(snap.StateCounts, snap.Queue.Size)
		writeJSON(w, http.StatusOK, snap)
	}
}

// RootHandler serves inspects like /inspect when the request carries a
// descriptor; otherwise it reports service identity and fleet readiness.
func (s *Server) RootHandler() http.HandlerFunc {
	inspect := s.InspectHandler()
	return func(w http.ResponseWriter, r *http.Request) {
		if q := r.URL.Query(); q.Get("url") != "" || q.Get("a") != "" {
			inspect(w, r)
			return
		}
		snap := s.Fleet.Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"service":        s.Cfg.OTELServiceName,
			"status":         "ok",
			"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
			"ready_bots":     snap.ReadyBots,
			"total_bots":     snap.TotalBots,
			"queue_size":     snap.Queue.Size,
		})
	}
}

// HealthzHandler is the liveness probe.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the backing stores with a short deadline.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
