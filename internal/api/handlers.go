package api

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/bleedingdev/usagedeck/internal/cache"
	"github.com/bleedingdev/usagedeck/internal/keystore"
)

// keyEntry is the wire shape for one credential in key-management responses.
type keyEntry struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// getData serves the current aggregate snapshot. A stale snapshot is served
// while a refresh is in flight; readers never wait for one.
func (s *Server) getData(c *gin.Context) {
	view := s.cache.Read()

	switch view.State {
	case cache.StateReady:
		c.JSON(http.StatusOK, view.Snapshot)
	case cache.StateFailed:
		c.JSON(http.StatusInternalServerError, gin.H{"error": view.Err})
	case cache.StateUpdating:
		if view.Snapshot != nil {
			c.JSON(http.StatusOK, view.Snapshot)
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "data is being refreshed"})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no data available yet"})
	}
}

// listKeys returns all credentials unmasked.
func (s *Server) listKeys(c *gin.Context) {
	creds, err := s.store.List(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("Failed to list credentials")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	keys := make([]keyEntry, 0, len(creds))
	for _, cred := range creds {
		keys = append(keys, keyEntry{ID: cred.ID, Key: cred.Secret})
	}
	c.JSON(http.StatusOK, keys)
}

// addKeys handles both single add ({key}) and batch import ([{id?, key}]),
// distinguished by the body's top-level JSON shape.
func (s *Server) addKeys(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		s.addKeyBatch(c, body)
		return
	}
	s.addKeySingle(c, body)
}

func (s *Server) addKeySingle(c *gin.Context, body []byte) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	key := strings.TrimSpace(req.Key)
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}

	ctx := c.Request.Context()
	existing, err := s.store.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	for _, cred := range existing {
		if cred.Secret == key {
			c.JSON(http.StatusConflict, gin.H{"error": "duplicate key"})
			return
		}
	}

	cred := keystore.Credential{ID: uuid.NewString(), Secret: key}
	if err := s.store.Set(ctx, cred); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.WithField("id", cred.ID).Info("Credential added")
	s.cache.TriggerAsync()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) addKeyBatch(c *gin.Context, body []byte) {
	var req []struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	existing, err := s.store.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Seen-set covers both pre-existing secrets and ones accepted earlier in
	// this batch, so identical secrets within one import yield one add.
	seen := make(map[string]bool, len(existing))
	for _, cred := range existing {
		seen[cred.Secret] = true
	}

	added, skipped := 0, 0
	for _, item := range req {
		key := strings.TrimSpace(item.Key)
		if key == "" || seen[key] {
			skipped++
			continue
		}

		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		if err := s.store.Set(ctx, keystore.Credential{ID: id, Secret: key}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		seen[key] = true
		added++
	}

	log.WithFields(log.Fields{"added": added, "skipped": skipped}).Info("Batch import completed")
	if added > 0 {
		s.cache.TriggerAsync()
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "added": added, "skipped": skipped})
}

// batchDeleteKeys removes a set of credentials by id.
func (s *Server) batchDeleteKeys(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}

	ctx := c.Request.Context()
	deleted := 0
	for _, id := range req.IDs {
		if _, err := s.store.Get(ctx, id); err == keystore.ErrNotFound {
			continue
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := s.store.Delete(ctx, id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		deleted++
	}

	log.WithField("deleted", deleted).Info("Batch delete completed")
	if deleted > 0 {
		s.cache.TriggerAsync()
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": deleted})
}

// exportKeys returns all credentials unmasked after a password check.
func (s *Server) exportKeys(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.exportPassword)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}

	creds, err := s.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	keys := make([]keyEntry, 0, len(creds))
	for _, cred := range creds {
		keys = append(keys, keyEntry{ID: cred.ID, Key: cred.Secret})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "keys": keys})
}

// deleteKey removes one credential.
func (s *Server) deleteKey(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	if err := s.store.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.WithField("id", id).Info("Credential deleted")
	s.cache.TriggerAsync()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// refreshKey synchronously refetches usage for one credential. The cached
// snapshot is not touched; the caller gets the fresh result directly.
func (s *Server) refreshKey(c *gin.Context) {
	id := c.Param("id")

	cred, err := s.store.Get(c.Request.Context(), id)
	if err == keystore.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	result := s.fetcher.Fetch(c.Request.Context(), cred.ID, cred.Secret)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}
