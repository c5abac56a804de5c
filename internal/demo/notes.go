package demo

import (
	"slices"
	"strconv"
	"sync"

	"github.com/toyz/rewire/pkg/rewire"
)

// Note is a single stored note
type Note struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// NotesController serves an in-memory note store under /api/notes
type NotesController struct {
	rewire.Base

	mu     sync.RWMutex
	nextID int
	notes  map[int]Note
}

// NewNotesController creates an empty store
func NewNotesController() *NotesController {
	return &NotesController{nextID: 1, notes: make(map[int]Note)}
}

func (*NotesController) Controller() rewire.ControllerSpec {
	return rewire.ControllerSpec{
		Paths: []string{"/api/notes"},
		Operations: rewire.Operations{
			"List":   {rewire.GET("/")},
			"Show":   {rewire.GET("/{id:int}")},
			"Create": {rewire.POST("/")},
			"Delete": rewire.MustParseMarkers("//rewire::DELETE /{id:int} -roles=editor"),
		},
	}
}

func (c *NotesController) List() (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	notes := make([]Note, 0, len(c.notes))
	for _, n := range c.notes {
		notes = append(notes, n)
	}
	slices.SortFunc(notes, func(a, b Note) int { return a.ID - b.ID })
	return notes, nil
}

func (c *NotesController) Show(req rewire.RequestContext) (any, error) {
	id, _ := strconv.Atoi(req.Param("id"))

	c.mu.RLock()
	defer c.mu.RUnlock()
	note, ok := c.notes[id]
	if !ok {
		return nil, rewire.ErrNotFound("note " + req.Param("id") + " not found")
	}
	return note, nil
}

func (c *NotesController) Create(req rewire.RequestContext) (any, error) {
	var note Note
	if err := req.Bind(&note); err != nil {
		return nil, rewire.ErrBadRequest("invalid note: " + err.Error())
	}
	if note.Text == "" {
		return nil, rewire.ErrBadRequest("text is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	note.ID = c.nextID
	c.nextID++
	c.notes[note.ID] = note
	return note, nil
}

func (c *NotesController) Delete(req rewire.RequestContext) (any, error) {
	id, _ := strconv.Atoi(req.Param("id"))

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.notes[id]; !ok {
		return nil, rewire.ErrNotFound("note " + req.Param("id") + " not found")
	}
	delete(c.notes, id)
	return nil, nil
}

// Len returns the number of stored notes
func (c *NotesController) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.notes)
}
