package breach

import (
	"time"

	id "custodia/pkg/domain"
)

// Notification thresholds. Subject counts are strict: exactly the threshold
// does not trip the rule, one more does.
const (
	notificationSubjectThreshold = 100
	subjectNoticeThreshold       = 50
)

// AuthorityNotificationWindow is the regulatory deadline for notifying the
// supervisory authority, measured from detection.
const AuthorityNotificationWindow = 72 * time.Hour

// NotificationRequired reports whether the breach triggers the notification
// sequence at all: any high-risk category, or more than 100 affected
// subjects.
func NotificationRequired(categories []id.DataCategory, approxSubjects int) bool {
	return id.AnyHighRisk(categories) || approxSubjects > notificationSubjectThreshold
}

// NotifySubjects reports whether affected data subjects must be notified
// directly: any high-risk category, or more than 50 affected subjects.
func NotifySubjects(categories []id.DataCategory, approxSubjects int) bool {
	return id.AnyHighRisk(categories) || approxSubjects > subjectNoticeThreshold
}

// ReportToAuthority reports whether the supervisory authority must be
// notified: any high-risk category, or more than 100 affected subjects.
func ReportToAuthority(categories []id.DataCategory, approxSubjects int) bool {
	return id.AnyHighRisk(categories) || approxSubjects > notificationSubjectThreshold
}

// AuthorityDeadline is the latest instant an authority notification for a
// breach detected at reportedAt is considered on time.
func AuthorityDeadline(reportedAt time.Time) time.Time {
	return reportedAt.Add(AuthorityNotificationWindow)
}
