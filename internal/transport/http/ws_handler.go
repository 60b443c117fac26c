package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"classquiz-service/internal/app"
	"classquiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	ctrl     *app.Controller
	upgrader websocket.Upgrader
}

func NewWSHandler(ctrl *app.Controller) *WSHandler {
	return &WSHandler{
		ctrl: ctrl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type advancePayload struct {
	QuestionIndex int `json:"questionIndex"`
}

type addQuestionPayload struct {
	Question domain.Question `json:"question"`
}

type addTimePayload struct {
	Seconds int `json:"seconds"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the live
// session commands. One connection is one participant; the client identifies
// itself via query parameters and every later command runs under that actor.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	role := domain.Role(r.URL.Query().Get("role"))
	if quizID == "" || userID == "" || displayName == "" {
		http.Error(w, "missing quizId, userId, or name", http.StatusBadRequest)
		return
	}
	if role != domain.RoleTeacher {
		role = domain.RoleStudent
	}
	actor := app.Actor{ID: userID, Username: displayName, Role: role}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	joined, err := h.ctrl.Join(r.Context(), quizID, actor)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	updates, cancel, err := h.ctrl.Subscribe(r.Context(), quizID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()
	defer h.ctrl.Leave(quizID, userID)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(update.Type), Payload: update.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: joined}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, send, quizID, actor, inbound)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, send chan outboundMessage[any], quizID string, actor app.Actor, inbound inboundMessage) {
	switch inbound.Type {
	case "start":
		h.report(send, quizID, h.ctrl.Start(r.Context(), quizID, actor))

	case "next_question":
		var payload advancePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid next_question payload"}}
			return
		}
		h.report(send, quizID, h.ctrl.Advance(r.Context(), quizID, actor, payload.QuestionIndex))

	case "submit_answer":
		var payload domain.AnswerSubmission
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid submit_answer payload"}}
			return
		}
		feedback, err := h.ctrl.SubmitAnswer(r.Context(), quizID, actor, payload)
		if err != nil {
			h.report(send, quizID, err)
			return
		}
		send <- outboundMessage[any]{Type: "answer_result", Payload: feedback}

	case "add_question":
		var payload addQuestionPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid add_question payload"}}
			return
		}
		h.report(send, quizID, h.ctrl.AddQuestion(r.Context(), quizID, actor, payload.Question))

	case "add_time":
		var payload addTimePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid add_time payload"}}
			return
		}
		h.report(send, quizID, h.ctrl.AddTime(r.Context(), quizID, actor, payload.Seconds))

	case "end_quiz":
		h.report(send, quizID, h.ctrl.End(r.Context(), quizID, actor))

	default:
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
	}
}

// report relays a command error to the client. A command landing after the
// session finished is stale, not wrong: it is logged and swallowed so a slow
// client doesn't see an error for a race it cannot avoid.
func (h *WSHandler) report(send chan outboundMessage[any], quizID string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrSessionFinished) {
		log.Printf("live: dropped stale command for finished session %s", quizID)
		return
	}
	send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}
