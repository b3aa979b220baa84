package email

const subjectPrefix = "[Leadflow] "

var headings = map[Kind]string{
	KindAssignment:   "A new lead is waiting for you",
	KindReminder:     "Your lead is still waiting for a reply",
	KindEscalation:   "A lead has been escalated",
	KindSentBack:     "Your PSM sent a lead back to you",
	KindReassignment: "A lead has been handed to you",
}

func subjectFor(msg Message) string {
	if msg.Subject != "" {
		return subjectPrefix + msg.Subject
	}
	return subjectPrefix + headings[msg.Kind]
}
