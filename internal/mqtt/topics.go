package mqtt

import "fmt"

func TopicSessionQueries(prefix string) string {
	return fmt.Sprintf("%s/session/+/query", prefix)
}

func TopicSessionResets(prefix string) string {
	return fmt.Sprintf("%s/session/+/reset", prefix)
}

func TopicQuery(prefix, sessionID string) string {
	return fmt.Sprintf("%s/session/%s/query", prefix, sessionID)
}

func TopicStage(prefix, sessionID string) string {
	return fmt.Sprintf("%s/session/%s/stage", prefix, sessionID)
}

func TopicResult(prefix, sessionID string) string {
	return fmt.Sprintf("%s/session/%s/result", prefix, sessionID)
}

func TopicReset(prefix, sessionID string) string {
	return fmt.Sprintf("%s/session/%s/reset", prefix, sessionID)
}

// TopicServerOnline carries a retained "1" while the server is connected
// and "0" (the will) once it is gone.
func TopicServerOnline(prefix string) string {
	return fmt.Sprintf("%s/server/online", prefix)
}
