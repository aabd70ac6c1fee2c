package vaultapi

import "github.com/dale0525/secondloop/internal/store"

func UpsertTodo(appDir string, key []byte, t store.Todo) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.UpsertTodo(t)
}

func SetTodoRecurrence(appDir string, key []byte, r store.TodoRecurrence) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.SetTodoRecurrence(r)
}

// SetTodoStatus transitions a todo's status, clearing review fields when the
// new status isn't review-relevant and spawning exactly one successor the
// first time a recurring todo reaches "done" (§4.4).
func SetTodoStatus(appDir string, key []byte, id, newStatus string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.SetTodoStatus(id, newStatus)
}

func GetTodo(appDir string, key []byte, id string) (*store.Todo, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.GetTodo(id)
}

func ListTodos(appDir string, key []byte) ([]store.Todo, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.ListTodos()
}

// DeleteTodo cascades to the todo's activities, any synthetic messages
// created for note activities, and its recurrence record (§3 Lifecycles).
func DeleteTodo(appDir string, key []byte, id string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.DeleteTodo(id)
}

// AppendTodoNote appends a free-text note to a todo's activity log. When
// sourceMessageID is empty, a user message is synthesized in the todo's
// originating conversation and the activity's timestamp is taken from it.
func AppendTodoNote(appDir string, key []byte, todoID, content, sourceMessageID string) (store.TodoActivity, error) {
	s, err := open(appDir, key)
	if err != nil {
		return store.TodoActivity{}, err
	}
	return s.AppendTodoNote(todoID, content, sourceMessageID)
}

func ListTodoActivities(appDir string, key []byte, todoID string) ([]store.TodoActivity, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.ListTodoActivities(todoID)
}

func GetTodoActivity(appDir string, key []byte, id string) (*store.TodoActivity, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.GetTodoActivity(id)
}
