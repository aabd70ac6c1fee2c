package vaultapi

import "github.com/dale0525/secondloop/internal/store"

func UpsertTag(appDir string, key []byte, name string) (store.Tag, error) {
	s, err := open(appDir, key)
	if err != nil {
		return store.Tag{}, err
	}
	return s.UpsertTag(name)
}

func ListTags(appDir string, key []byte) ([]store.Tag, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.ListTags()
}

func ListMessageTags(appDir string, key []byte, messageID string) ([]store.Tag, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.ListMessageTags(messageID)
}

func SetMessageTags(appDir string, key []byte, messageID string, tagIDs []string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.SetMessageTags(messageID, tagIDs)
}

func MessageIDsByTagIDs(appDir string, key []byte, conversationID string, tagIDs []string) ([]string, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.MessageIDsByTagIDs(conversationID, tagIDs)
}

// ListMessageSuggestedTags returns tag names the engine suggests for
// messageID but that are not yet applied to it (§5 supplemental read view).
func ListMessageSuggestedTags(appDir string, key []byte, messageID string, limit int) ([]string, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.ListMessageSuggestedTags(messageID, limit)
}

func RecordTagMergeSuggestion(appDir string, key []byte, sug store.TagMergeSuggestion) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.RecordTagMergeSuggestion(sug)
}

func ListTagMergeSuggestions(appDir string, key []byte, limit int) ([]store.TagMergeSuggestion, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.ListTagMergeSuggestions(limit)
}

// MergeTags folds sourceTagID's taggings into targetTagID and removes the
// source tag, returning the number of taggings rewritten.
func MergeTags(appDir string, key []byte, sourceTagID, targetTagID string) (int, error) {
	s, err := open(appDir, key)
	if err != nil {
		return 0, err
	}
	return s.MergeTags(sourceTagID, targetTagID)
}

func RecordTagMergeFeedback(appDir string, key []byte, fb store.TagMergeFeedback) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.RecordTagMergeFeedback(fb)
}

func CreateTopicThread(appDir string, key []byte, conversationID string, title *string) (store.TopicThread, error) {
	s, err := open(appDir, key)
	if err != nil {
		return store.TopicThread{}, err
	}
	return s.CreateTopicThread(conversationID, title)
}

func UpdateTopicThreadTitle(appDir string, key []byte, id string, title *string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.UpdateTopicThreadTitle(id, title)
}

func ListTopicThreads(appDir string, key []byte, conversationID string) ([]store.TopicThread, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.ListTopicThreads(conversationID)
}

func SetTopicThreadMessageIDs(appDir string, key []byte, threadID string, messageIDs []string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.SetTopicThreadMessageIDs(threadID, messageIDs)
}

func ListTopicThreadMessageIDs(appDir string, key []byte, threadID string) ([]string, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.ListTopicThreadMessageIDs(threadID)
}

func DeleteTopicThread(appDir string, key []byte, id string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.DeleteTopicThread(id)
}
