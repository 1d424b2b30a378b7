package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

type IEmailService interface {
	SendSessionReminder(toEmail, sessionTitle, startTime string) error
	SendCourseCreated(toEmail, courseTitle string) error
}

type emailService struct {
	dialer      *gomail.Dialer
	senderEmail string
	senderName  string
}

func NewEmailService(host string, port int, username, password, senderEmail, senderName string) IEmailService {
	d := gomail.NewDialer(host, port, username, password)

	return &emailService{
		dialer:      d,
		senderEmail: senderEmail,
		senderName:  senderName,
	}
}

// SendSessionReminder is the fallback channel when the user has no active
// websocket connection at reminder time.
func (s *emailService) SendSessionReminder(toEmail, sessionTitle, startTime string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.senderEmail, s.senderName)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "Your live session is about to start")

	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>Session Reminder</h2>
			<p>Your live session <strong>%s</strong> is about to start.</p>
			<p>Scheduled start: %s</p>
			<p>Join from your dashboard to not miss the beginning.</p>
		</div>
	`, sessionTitle, startTime)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		fmt.Printf("[MAILER ERROR] Failed to send session reminder to %s: %v\n", toEmail, err)
		return err
	}

	fmt.Printf("[MAILER] Session reminder sent to %s\n", toEmail)
	return nil
}

func (s *emailService) SendCourseCreated(toEmail, courseTitle string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.senderEmail, s.senderName)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "Your course has been published")

	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>Course Published</h2>
			<p>Your course <strong>%s</strong> was created successfully and is now visible to students.</p>
		</div>
	`, courseTitle)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		fmt.Printf("[MAILER ERROR] Failed to send course notification to %s: %v\n", toEmail, err)
		return err
	}

	return nil
}
