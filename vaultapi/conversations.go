package vaultapi

import "github.com/dale0525/secondloop/internal/store"

func UpsertConversation(appDir string, key []byte, c store.Conversation) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.UpsertConversation(c)
}

func GetConversation(appDir string, key []byte, id string) (*store.Conversation, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.GetConversation(id)
}

func ListConversations(appDir string, key []byte) ([]store.Conversation, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.ListConversations()
}

func DeleteConversation(appDir string, key []byte, id string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.DeleteConversation(id)
}

func EnsureWellKnownConversations(appDir string, key []byte) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.EnsureWellKnownConversations()
}

func AppendMessage(appDir string, key []byte, m store.Message) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.AppendMessage(m)
}

func SetMessageIsMemory(appDir string, key []byte, messageID string, isMemory bool) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.SetMessageIsMemory(messageID, isMemory)
}

func GetMessage(appDir string, key []byte, id string) (*store.Message, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.GetMessage(id)
}

func ListMessages(appDir string, key []byte, conversationID string) ([]store.Message, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.ListMessages(conversationID)
}

func DeleteMessage(appDir string, key []byte, id string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.DeleteMessage(id)
}
