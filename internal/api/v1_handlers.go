package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/RahulBansal123/audius-protocol/internal/fleet"
	"github.com/RahulBansal123/audius-protocol/internal/queries"
)

func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	limit, offset := parseLimitOffset(r, 100, 500)

	activities, err := queries.GetUserListeningHistory(r.Context(), s.store, queries.ListeningHistoryArgs{
		UserID:        userID,
		Limit:         limit,
		Offset:        offset,
		FilterDeleted: parseBoolParam(r, "filter_deleted"),
		WithUsers:     parseBoolParam(r, "with_users"),
	})
	if err != nil {
		s.logger.Error("listening history query failed", zap.Int64("user_id", userID), zap.Error(err))
		writeAPIError(w, http.StatusInternalServerError, "failed to fetch listening history")
		return
	}

	writeAPIResponse(w, activities, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
		"count":  len(activities),
	})
}

func (s *Server) handleUserFollowers(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	limit, offset := parseLimitOffset(r, 10, 100)

	users, err := queries.GetFollowersForUser(r.Context(), s.store, userID, limit, offset)
	if err != nil {
		s.logger.Error("followers query failed", zap.Int64("user_id", userID), zap.Error(err))
		writeAPIError(w, http.StatusInternalServerError, "failed to fetch followers")
		return
	}

	writeAPIResponse(w, users, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
		"count":  len(users),
	})
}

func (s *Server) handleUserBalances(w http.ResponseWriter, r *http.Request) {
	ids := parseIDParams(r)
	if len(ids) == 0 {
		writeAPIError(w, http.StatusBadRequest, "at least one id param is required")
		return
	}

	balances, err := queries.GetBalances(r.Context(), s.store, s.cache, ids)
	if err != nil {
		s.logger.Error("balances query failed", zap.Error(err))
		writeAPIError(w, http.StatusInternalServerError, "failed to fetch balances")
		return
	}

	writeAPIResponse(w, balances, map[string]interface{}{"count": len(balances)})
}

func (s *Server) handlePlayBySignature(w http.ResponseWriter, r *http.Request) {
	signature := mux.Vars(r)["signature"]

	plays, err := queries.GetPlay(r.Context(), s.store, signature)
	if err != nil {
		s.logger.Error("play lookup failed", zap.String("signature", signature), zap.Error(err))
		writeAPIError(w, http.StatusInternalServerError, "failed to fetch play")
		return
	}
	if len(plays) == 0 {
		writeAPIError(w, http.StatusNotFound, "play not found")
		return
	}

	writeAPIResponse(w, plays, map[string]interface{}{"count": len(plays)})
}

func (s *Server) handleTrackMilestones(w http.ResponseWriter, r *http.Request) {
	limit, _ := parseLimitOffset(r, 100, 1000)

	milestones, err := queries.GetTrackListenMilestones(r.Context(), s.store, limit)
	if err != nil {
		s.logger.Error("milestones query failed", zap.Error(err))
		writeAPIError(w, http.StatusInternalServerError, "failed to fetch milestones")
		return
	}

	writeAPIResponse(w, milestones, map[string]interface{}{"count": len(milestones)})
}

func (s *Server) handleFleetStats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.store.GetStatusSnapshot(r.Context(), fleet.SnapshotKind)
	if err != nil {
		s.logger.Error("fleet snapshot lookup failed", zap.Error(err))
		writeAPIError(w, http.StatusInternalServerError, "failed to fetch fleet stats")
		return
	}
	if snapshot == nil {
		writeAPIError(w, http.StatusNotFound, "no fleet snapshot yet")
		return
	}

	writeAPIResponse(w, snapshot.Payload, map[string]interface{}{
		"updated_at": snapshot.UpdatedAt,
	})
}

type refreshBalancesRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

// handleAdminRefreshBalances force-enqueues users into the balance
// refresh set. Auth happens in the admin middleware.
func (s *Server) handleAdminRefreshBalances(w http.ResponseWriter, r *http.Request) {
	var req refreshBalancesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.UserIDs) == 0 {
		writeAPIError(w, http.StatusBadRequest, "user_ids is required")
		return
	}

	if err := s.cache.EnqueueBalanceRefresh(r.Context(), req.UserIDs); err != nil {
		s.logger.Error("failed to enqueue balance refresh", zap.Error(err))
		writeAPIError(w, http.StatusInternalServerError, "failed to enqueue refresh")
		return
	}

	s.logger.Info("admin enqueued balance refresh",
		zap.String("subject", subjectFromContext(r.Context())),
		zap.Int("users", len(req.UserIDs)))
	writeAPIResponse(w, map[string]interface{}{"enqueued": len(req.UserIDs)}, nil)
}
