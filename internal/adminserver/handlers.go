// Package adminserver wires up a read-only Gin HTTP router over a live
// graphdb.DB for operational introspection (spec §6 bounded CLI/ops
// surface): liveness, generation, node/neighbor lookup. No mutation
// endpoints — multi-writer access over HTTP is outside scope.
package adminserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/raydb/raydb/internal/graphdb"
	"github.com/raydb/raydb/internal/graphtypes"
)

// Handler holds the dependencies injected from main.
type Handler struct {
	db  *graphdb.DB
	log zerolog.Logger
}

// NewHandler creates a Handler over db.
func NewHandler(db *graphdb.DB, log zerolog.Logger) *Handler {
	return &Handler{db: db, log: log}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)

	node := r.Group("/nodes/:id")
	node.GET("", h.GetNode)
	node.GET("/out", h.NeighborsOut)
	node.GET("/in", h.NeighborsIn)
	node.GET("/props/:propkey", h.GetNodeProp)
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stats handles GET /stats
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"generation": h.db.Generation(),
		"num_nodes":  h.db.CountNodes(),
	})
}

func parseNodeID(c *gin.Context) (graphtypes.NodeID, bool) {
	raw := c.Param("id")
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid node id"})
		return 0, false
	}
	return graphtypes.NodeID(v), true
}

// GetNode handles GET /nodes/:id
func (h *Handler) GetNode(c *gin.Context) {
	id, ok := parseNodeID(c)
	if !ok {
		return
	}
	if !h.db.NodeExists(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// NeighborsOut handles GET /nodes/:id/out
func (h *Handler) NeighborsOut(c *gin.Context) {
	id, ok := parseNodeID(c)
	if !ok {
		return
	}
	if !h.db.NodeExists(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"out": h.db.NeighborsOut(id)})
}

// NeighborsIn handles GET /nodes/:id/in
func (h *Handler) NeighborsIn(c *gin.Context) {
	id, ok := parseNodeID(c)
	if !ok {
		return
	}
	if !h.db.NodeExists(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"in": h.db.NeighborsIn(id)})
}

// GetNodeProp handles GET /nodes/:id/props/:propkey
func (h *Handler) GetNodeProp(c *gin.Context) {
	id, ok := parseNodeID(c)
	if !ok {
		return
	}
	pk, err := strconv.ParseUint(c.Param("propkey"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid propkey"})
		return
	}
	v, found := h.db.GetNodeProp(id, graphtypes.PropKey(pk))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "property not set"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tag": v.Tag.String(), "value": valueJSON(v)})
}

func valueJSON(v graphtypes.Value) any {
	switch v.Tag {
	case graphtypes.TagBool:
		return v.Bool
	case graphtypes.TagI64:
		return v.I64
	case graphtypes.TagF64:
		return v.F64
	case graphtypes.TagString:
		return v.Str
	case graphtypes.TagVectorF32:
		return v.VecRef
	default:
		return nil
	}
}

// NewRouter builds a ready-to-serve Gin engine with the admin routes and
// logging/recovery middleware registered (teacher's api.Logger()/
// api.Recovery() pattern, generalized to inject a structured logger
// instead of the stdlib one).
func NewRouter(db *graphdb.DB, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(Logger(log), Recovery(log))
	NewHandler(db, log).Register(r)
	return r
}
