package chat

import "fmt"

// Card action functions invoked by button clicks. The webhook handler
// dispatches on these names.
const (
	FuncApprove           = "approve"
	FuncRejectDialog      = "reject_dialog"
	FuncSubmitRejection   = "submit_rejection"
	FuncSurveyResponse    = "survey_response"
	FuncCallComplete      = "call_complete"
	FuncProceedUnredacted = "proceed_unredacted"
	FuncEditQueryDialog   = "edit_query_dialog"
	FuncSubmitEditedQuery = "submit_edited_query"
)

// Action parameter keys shared between card construction and the webhook
// handler.
const (
	ParamThreadID          = "threadId"
	ParamUserSpaceID       = "userSpaceId"
	ParamUserMessageID     = "userMessageId"
	ParamRequestMessageID  = "requestMessageId"
	ParamUserEmail         = "userEmail"
	ParamQuestion          = "question"
	ParamResponse          = "response"
	ParamMessageEvent      = "messageEvent"
	ParamRejectionFeedback = "supervisorResponse"
	ParamEditedQuery       = "editedQuery"
)

// SurveyQuestion is one survey question with its allowed responses, rendered
// as a button row.
type SurveyQuestion struct {
	Question string
	Values   []string
}

func statusCard(id, text string) Card {
	return NewCard(id, TextSection("", text))
}

// Processing is shown in place of the adviser's message while it is admitted.
func Processing() Content {
	return CardContent(statusCard("processing", "<i>Preparing your request...</i>"))
}

// Composing is shown once the message has been admitted to generation.
func Composing() Content {
	return CardContent(statusCard("composing", "<i>Composing an answer...</i>"))
}

// ComposingRetry is shown when a generation attempt failed and will be retried.
func ComposingRetry() Content {
	return CardContent(statusCard("composingRetry", "<i>Still composing an answer, thank you for your patience...</i>"))
}

// RequestFailed is shown to the adviser when generation is abandoned.
func RequestFailed() Content {
	return CardContent(statusCard("requestFailed", "Your request could not be completed. Please try sending your question again."))
}

// AwaitingApproval replaces the composing notice while a supervisor reviews.
func AwaitingApproval() Content {
	return CardContent(statusCard("awaitingApproval", "<i>Your answer is awaiting supervisor approval...</i>"))
}

// SupervisorReviewing is shown while the answer is still streaming to the
// supervisor view.
func SupervisorReviewing() Content {
	return CardContent(statusCard("supervisorReviewing", "<i>A supervisor is reviewing the response...</i>"))
}

// SurveyAlreadyCompleted tells the adviser the call's survey has already been
// filled in, so no further answers can be requested on this thread.
func SurveyAlreadyCompleted() Content {
	return TextContent("The survey for this call has already been completed, so this conversation is closed. Please start a new thread for a new call.")
}

// ExistingCallReminder nudges the adviser that a call is still open on
// another thread and its survey is outstanding.
func ExistingCallReminder() Content {
	return TextContent("You have a call in progress on another thread. Please remember to mark it complete and fill in its survey when the call ends.")
}

// CallMarkedComplete confirms the completion action.
func CallMarkedComplete() Content {
	return CardContent(statusCard("callComplete", "Call marked complete. Thank you."))
}

// ControlGroup explains why no answer will be generated for this call.
func ControlGroup(message string) Content {
	return CardContent(statusCard("controlGroup", message))
}

// PIIWarning asks the adviser to confirm or edit before a flagged message
// proceeds.
func PIIWarning(messageEvent string) Content {
	params := map[string]string{ParamMessageEvent: messageEvent}
	card := NewCard("piiDetected",
		TextSection("", "Your message may contain personally identifiable information. Please remove names, addresses and reference numbers before proceeding."),
		Section{Widgets: []Widget{{
			Buttons: []Button{
				{
					Text: "Proceed without editing",
					Action: Action{
						Function:   FuncProceedUnredacted,
						Parameters: params,
					},
				},
				{
					Text: "Edit original query",
					Action: Action{
						Function:    FuncEditQueryDialog,
						Interaction: "OPEN_DIALOG",
						Parameters:  params,
					},
				},
			},
		}}},
	)
	return CardContent(card)
}

// AnswerCard renders an accumulated answer as the approvable artifact.
func AnswerCard(answer string) Card {
	return NewCard("aiResponseCard", TextSection("", answer))
}

// StreamingSection marks a supervisor-side answer card as still streaming.
func StreamingSection() Section {
	return TextSection("", "<i>Response is still being written...</i>")
}

// ApprovalSection marks an artifact as approved by the named supervisor.
func ApprovalSection(approver string) Section {
	return Section{Widgets: []Widget{{
		TopLabel:      "Status",
		TextParagraph: fmt.Sprintf("✅ Approved by %s", approver),
	}}}
}

// RejectionSection marks an artifact as rejected, including the supervisor's
// follow-up for the adviser.
func RejectionSection(approver, feedback string) Section {
	return Section{Widgets: []Widget{{
		TopLabel:      "Status",
		TextParagraph: fmt.Sprintf("❌ Rejected by %s<br><b>Supervisor response:</b> %s", approver, feedback),
	}}}
}

// RejectionNotice replaces the adviser's placeholder when an answer is
// rejected.
func RejectionNotice(approver, feedback string) Content {
	card := NewCard("rejectionNotice",
		TextSection("", fmt.Sprintf("The AI response was rejected by %s.", approver)),
		TextSection("Supervisor response", feedback),
	)
	return CardContent(card)
}

// SupervisorRequestPending is the supervisor-space status message sent while
// an answer is being generated.
func SupervisorRequestPending(user, query string) Content {
	return CardContent(requestCard("requestPending", user, query, "<i>Response being generated...</i>"))
}

// SupervisorRequestAwaiting marks a request as ready for a decision.
func SupervisorRequestAwaiting(user, query string) Content {
	return CardContent(requestCard("requestAwaiting", user, query, "<b>Awaiting approval</b>"))
}

// SupervisorRequestApproved marks a request as approved.
func SupervisorRequestApproved(user, query string) Content {
	return CardContent(requestCard("requestApproved", user, query, "✅ Response approved"))
}

// SupervisorRequestRejected marks a request as rejected.
func SupervisorRequestRejected(user, query string) Content {
	return CardContent(requestCard("requestRejected", user, query, "❌ Response rejected"))
}

// SupervisorRequestFailed replaces the pending request when generation gives
// up.
func SupervisorRequestFailed(user, query string) Content {
	return CardContent(requestCard("requestFailed", user, query, "⚠️ Response generation failed"))
}

func requestCard(id, user, query, status string) Card {
	return NewCard(id,
		Section{Widgets: []Widget{
			{TopLabel: "New request", TextParagraph: fmt.Sprintf("<b>%s</b>", user)},
			{TextParagraph: query},
			{TextParagraph: status},
		}},
	)
}

// ApprovalButtonsSection builds the decision row appended to a supervision
// card. Both buttons carry the same routing parameters.
func ApprovalButtonsSection(parameters map[string]string) Section {
	return Section{Widgets: []Widget{{
		Buttons: []Button{
			{
				Text: "👍",
				Action: Action{
					Function:   FuncApprove,
					Parameters: parameters,
				},
			},
			{
				Text: "👎",
				Action: Action{
					Function:    FuncRejectDialog,
					Interaction: "OPEN_DIALOG",
					Parameters:  parameters,
				},
			},
		},
	}}}
}

// CallCompleteConfirm offers the adviser the option to mark the call
// complete.
func CallCompleteConfirm(threadID string) Content {
	card := NewCard("callCompleteConfirm",
		Section{Widgets: []Widget{{
			Buttons: []Button{{
				Text: "Mark call complete",
				Action: Action{
					Function:   FuncCallComplete,
					Parameters: map[string]string{ParamThreadID: threadID},
				},
			}},
		}}},
	)
	return CardContent(card)
}

// SurveyCard renders the pending survey questions, one section per question.
func SurveyCard(questions []SurveyQuestion) Card {
	card := NewCard("postCallSurvey")
	for i, q := range questions {
		buttons := make([]Button, 0, len(q.Values))
		for _, v := range q.Values {
			buttons = append(buttons, Button{
				Text: v,
				Action: Action{
					Function: FuncSurveyResponse,
					Parameters: map[string]string{
						ParamQuestion: q.Question,
						ParamResponse: v,
					},
				},
			})
		}
		card = card.Append(Section{Widgets: []Widget{
			{TopLabel: fmt.Sprintf("Question %d", i+1)},
			{TextParagraph: fmt.Sprintf("<b>%s</b>", q.Question)},
			{Buttons: buttons},
		}})
	}
	return card
}

// SurveyCompleteSection is appended once every question has been answered.
func SurveyCompleteSection() Section {
	return TextSection("", "Survey complete, thank you for your feedback.")
}

// EditQueryDialog is the platform dialog letting the adviser rework a
// flagged message before it proceeds. The original text is prefilled.
func EditQueryDialog(originalText string, parameters map[string]string) map[string]any {
	params := make([]map[string]string, 0, len(parameters))
	for k, v := range parameters {
		params = append(params, map[string]string{"key": k, "value": v})
	}
	return map[string]any{
		"action_response": map[string]any{
			"type": "DIALOG",
			"dialog_action": map[string]any{
				"dialog": map[string]any{
					"body": map[string]any{
						"sections": []map[string]any{{
							"header": "Edit query",
							"widgets": []map[string]any{
								{
									"textInput": map[string]any{
										"label": "Please edit your original query to remove any identifying details",
										"type":  "MULTIPLE_LINE",
										"name":  ParamEditedQuery,
										"value": originalText,
									},
								},
								{
									"buttonList": map[string]any{
										"buttons": []map[string]any{{
											"text": "Submit edited query",
											"onClick": map[string]any{
												"action": map[string]any{
													"function":   FuncSubmitEditedQuery,
													"parameters": params,
												},
											},
										}},
									},
									"horizontalAlignment": "END",
								},
							},
						}},
					},
				},
			},
		},
	}
}

// RejectionDialog is the platform dialog asking the supervisor for mandatory
// free-text feedback before a rejection is recorded.
func RejectionDialog(parameters map[string]string) map[string]any {
	params := make([]map[string]string, 0, len(parameters))
	for k, v := range parameters {
		params = append(params, map[string]string{"key": k, "value": v})
	}
	return map[string]any{
		"action_response": map[string]any{
			"type": "DIALOG",
			"dialog_action": map[string]any{
				"dialog": map[string]any{
					"body": map[string]any{
						"sections": []map[string]any{{
							"header": "Rejected response follow up",
							"widgets": []map[string]any{
								{
									"textInput": map[string]any{
										"label": "Enter a valid response for the adviser to their question",
										"type":  "MULTIPLE_LINE",
										"name":  ParamRejectionFeedback,
									},
								},
								{
									"buttonList": map[string]any{
										"buttons": []map[string]any{{
											"text": "Submit response",
											"onClick": map[string]any{
												"action": map[string]any{
													"function":   FuncSubmitRejection,
													"parameters": params,
												},
											},
										}},
									},
									"horizontalAlignment": "END",
								},
							},
						}},
					},
				},
			},
		},
	}
}
