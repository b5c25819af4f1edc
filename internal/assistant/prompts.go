package assistant

import "fmt"

const (
	GenericApology = "I apologize, but I encountered an error processing your request. Please try again or rephrase your question."

	researchApology = "⚠️ I encountered an issue with the research, so I couldn't gather fresh results for this request."
	calendarApology = "⚠️ I couldn't prepare the calendar event for this request. Please try again with a date and time."
	documentApology = "⚠️ I couldn't generate the document this time."
	emptyReply      = "I wasn't able to complete the requested actions. Please try again or rephrase your request."

	calendarNote = "*Note: In a full implementation, this would be added to your connected calendar app.*"
	documentNote = "*Note: In a full implementation, this would be saved to your connected document app (Google Docs, OneDrive, etc.)*"
)

func analysisPrompt(utterance string) string {
	return fmt.Sprintf(`Analyze this user request and determine what actions to take: %q

Available actions:
1. RESEARCH - Use web search to gather information
2. CALENDAR - Add events to calendar
3. EMAIL - Send emails
4. DOCUMENT - Create/generate documents
5. WORKFLOW - Create automation workflows
6. GENERAL - General conversation

Respond with the primary action and any specific details needed.`, utterance)
}

func researchPrompt(results string, utterance string) string {
	return fmt.Sprintf(`Based on this web search data: %s

User asked: %q

Provide a comprehensive, helpful response that summarizes key findings, gives actionable insights and suggests next steps. Offer to create documents or calendar events if relevant. Be conversational.`, results, utterance)
}

func calendarPrompt(utterance string) string {
	return fmt.Sprintf("Extract event details from: %q\n\nReturn JSON with: title, date, time, duration, description", utterance)
}

func documentPrompt(utterance string, research string) string {
	if research == "" {
		research = "No research data"
	}
	return fmt.Sprintf("Create a document based on: %q\n\nResearch gathered for this request:\n%s\n\nGenerate appropriate content.", utterance, research)
}

func generalPrompt(utterance string) string {
	return fmt.Sprintf("User said: %q\n\nProvide a helpful response as an AI automation assistant. Be conversational and suggest how I can help with automation, research, or workflow creation.", utterance)
}

func formatResearch(text string) string {
	return "🔍 **Research Results:**\n\n" + text
}

func formatCalendar(event CalendarEvent) string {
	return fmt.Sprintf("📅 **Calendar Event Created:**\n• **Title:** %s\n• **Date:** %s\n• **Time:** %s\n• **Duration:** %s\n\n%s",
		event.Title, event.Date, event.Time, event.Duration, calendarNote)
}

func formatDocument(content string) string {
	return "📄 **Document Generated:**\n\n" + content + "\n\n" + documentNote
}
