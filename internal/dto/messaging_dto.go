package dto

// PublishIndexCourseMessage is the async job payload asking the consumer
// to chunk and embed course material.
type PublishIndexCourseMessage struct {
	CourseId string `json:"course_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	UserId   string `json:"user_id,omitempty"`
}
