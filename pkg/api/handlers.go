package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/josephblackelite/spur-protocol/pkg/artifacts"
	"github.com/josephblackelite/spur-protocol/pkg/compiler"
	"github.com/josephblackelite/spur-protocol/pkg/contracts"
	"github.com/josephblackelite/spur-protocol/pkg/enforcement"
	"github.com/josephblackelite/spur-protocol/pkg/explain"
	"github.com/josephblackelite/spur-protocol/pkg/loader"
	"github.com/josephblackelite/spur-protocol/pkg/observability"
	"github.com/josephblackelite/spur-protocol/pkg/registry"
	"github.com/josephblackelite/spur-protocol/pkg/schema"
)

// DocumentsRequest carries the documents for evaluate, explain and compile.
// The adapter is given either by registry id or inline, never both.
type DocumentsRequest struct {
	Envelope  json.RawMessage `json:"envelope"`
	Policy    json.RawMessage `json:"policy"`
	Robot     json.RawMessage `json:"robot,omitempty"`
	Skill     json.RawMessage `json:"skill,omitempty"`
	AdapterID string          `json:"adapterId,omitempty"`
	Adapter   json.RawMessage `json:"adapter,omitempty"`
}

// CompileResponse is the body of a successful compile.
type CompileResponse struct {
	Plan     contracts.ExecutionPlan `json:"plan"`
	RecordID string                  `json:"recordId,omitempty"`
	Digest   string                  `json:"digest,omitempty"`
}

// VerifyResponse is the body of a verify call.
type VerifyResponse struct {
	Valid        bool   `json:"valid"`
	PlanID       string `json:"planId"`
	Hash         string `json:"hash"`
	ComputedHash string `json:"computedHash"`
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func decodeDoc[T any](kind schema.Kind, name string, raw json.RawMessage) (T, error) {
	if !present(raw) {
		var zero T
		return zero, fmt.Errorf("%w: %s is required", errBadRequest, name)
	}
	return loader.Decode[T](kind, raw)
}

func readRequest(w http.ResponseWriter, r *http.Request) (DocumentsRequest, error) {
	var req DocumentsRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return req, nil
}

func (s *Server) resolveAdapter(ctx context.Context, req DocumentsRequest) (contracts.AdapterContract, error) {
	switch {
	case req.AdapterID != "" && present(req.Adapter):
		return contracts.AdapterContract{}, fmt.Errorf("%w: give adapterId or adapter, not both", errBadRequest)
	case req.AdapterID != "":
		return s.registry.Get(ctx, req.AdapterID)
	default:
		return decodeDoc[contracts.AdapterContract](schema.KindAdapter, "adapter", req.Adapter)
	}
}

func decodeRobot(raw json.RawMessage) (*contracts.RobotProfile, error) {
	if !present(raw) {
		return nil, nil
	}
	robot, err := loader.Decode[contracts.RobotProfile](schema.KindRobot, raw)
	if err != nil {
		return nil, err
	}
	return &robot, nil
}

func (s *Server) enforcementInput(ctx context.Context, req DocumentsRequest) (enforcement.Input, error) {
	var (
		in  enforcement.Input
		err error
	)
	if in.Envelope, err = decodeDoc[contracts.Envelope](schema.KindEnvelope, "envelope", req.Envelope); err != nil {
		return in, err
	}
	if in.Policy, err = decodeDoc[contracts.Policy](schema.KindPolicy, "policy", req.Policy); err != nil {
		return in, err
	}
	if in.Robot, err = decodeRobot(req.Robot); err != nil {
		return in, err
	}
	if in.Adapter, err = s.resolveAdapter(ctx, req); err != nil {
		return in, err
	}
	return in, nil
}

func (s *Server) logVerdict(ctx context.Context, in enforcement.Input, v enforcement.Verdict) {
	s.logger.InfoContext(ctx, "enforcement decision",
		"envelope_id", in.Envelope.ID,
		"verb", in.Envelope.Intent.Verb,
		"adapter_id", in.Adapter.AdapterID,
		"mode", v.Decision.Mode,
		"gate", v.Gate,
	)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	req, err := readRequest(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	in, err := s.enforcementInput(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v := s.telemetry.Decide(r.Context(), in)
	s.logVerdict(r.Context(), in, v)
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	req, err := readRequest(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	in, err := s.enforcementInput(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v := s.telemetry.Decide(r.Context(), in)
	s.logVerdict(r.Context(), in, v)
	writeJSON(w, http.StatusOK, explain.Explain(in))
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	req, err := readRequest(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var in compiler.Input
	if in.Envelope, err = decodeDoc[contracts.Envelope](schema.KindEnvelope, "envelope", req.Envelope); err != nil {
		s.fail(w, r, err)
		return
	}
	if in.Policy, err = decodeDoc[contracts.Policy](schema.KindPolicy, "policy", req.Policy); err != nil {
		s.fail(w, r, err)
		return
	}
	if in.Skill, err = decodeDoc[contracts.SkillPack](schema.KindSkill, "skill", req.Skill); err != nil {
		s.fail(w, r, err)
		return
	}
	if in.Robot, err = decodeRobot(req.Robot); err != nil {
		s.fail(w, r, err)
		return
	}

	ctx, done := s.telemetry.Track(r.Context(), "compile", observability.AttrEnvelopeID.String(in.Envelope.ID))
	resp, err := s.compile(ctx, in)
	done(err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.InfoContext(ctx, "plan compiled",
		"plan_id", resp.Plan.PlanID,
		"hash", resp.Plan.Hash,
		"record_id", resp.RecordID,
		"digest", resp.Digest,
	)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) compile(ctx context.Context, in compiler.Input) (CompileResponse, error) {
	plan, err := compiler.Compile(in)
	if err != nil {
		return CompileResponse{}, err
	}
	resp := CompileResponse{Plan: *plan}
	if s.store != nil {
		rec, err := s.store.Save(ctx, *plan)
		if err != nil {
			return CompileResponse{}, err
		}
		resp.RecordID = rec.RecordID
	}
	if s.artifacts != nil {
		digest, err := artifacts.ExportPlan(ctx, s.artifacts, *plan)
		if err != nil {
			return CompileResponse{}, err
		}
		resp.Digest = digest
	}
	return resp, nil
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: read body: %v", errBadRequest, err))
		return
	}
	plan, err := loader.Decode[contracts.ExecutionPlan](schema.KindPlan, body)
	if err != nil {
		var ve *schema.ValidationError
		if !errors.As(err, &ve) {
			err = fmt.Errorf("%w: %v", errBadRequest, err)
		}
		s.fail(w, r, err)
		return
	}

	_, done := s.telemetry.Track(r.Context(), "verify", observability.AttrEnvelopeID.String(plan.SourceEnvelopeID))
	computed, err := compiler.ComputeHash(plan)
	done(err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{
		Valid:        computed == plan.Hash,
		PlanID:       plan.PlanID,
		Hash:         plan.Hash,
		ComputedHash: computed,
	})
}

func (s *Server) handleListAdapters(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("filter")
	if expr == "" {
		list, err := s.registry.List(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
		return
	}

	f, err := registry.NewFilter(expr)
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	all, err := s.registry.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := []contracts.AdapterContract{}
	for _, a := range all {
		ok, err := f.Match(a)
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		if ok {
			out = append(out, a)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAdapter(w http.ResponseWriter, r *http.Request) {
	a, err := s.registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		WriteNotFound(w, r, "plan store is not configured")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteBadRequest(w, r, "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		WriteNotFound(w, r, "plan store is not configured")
		return
	}
	rec, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "plan store unreachable", "error", err)
			WriteError(w, r, http.StatusServiceUnavailable, "Service Unavailable", "plan store is unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
