package service_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/magiciincaidev/callassist/common/id"
	"github.com/magiciincaidev/callassist/core/config"
	"github.com/magiciincaidev/callassist/internal/model"
	"github.com/magiciincaidev/callassist/internal/queue"
	"github.com/magiciincaidev/callassist/internal/service"
	"github.com/magiciincaidev/callassist/internal/store"
	"github.com/magiciincaidev/callassist/internal/suggest"
)

func waitingSession(sessionID string) *model.CallSession {
	now := time.Now()
	return &model.CallSession{
		SessionID:      sessionID,
		UserID:         "user-1",
		OperatorID:     "operator-1",
		ConversationID: "conv-1",
		StartTime:      now,
		Status:         model.SessionStatusWaiting,
		Constraints: model.Constraints{
			MaxConcurrentPairs: 1,
			CreatedAt:          now,
			CleanupAt:          now.Add(30 * time.Minute),
			MaxWaitingTime:     10 * time.Minute,
		},
		Participants: model.Participants{
			User:     model.Participant{ID: "user-1", JoinedAt: now, Status: model.ParticipantStatusWaiting},
			Operator: model.Participant{ID: "operator-1", JoinedAt: now, Status: model.ParticipantStatusWaiting},
		},
		Version: 1,
	}
}

var _ = Describe("CallService", func() {
	var (
		svc       service.CallService
		mockStore *mockSessionStore
		publisher *mockPublisher
		suggester *mockSuggestService
		ctx       context.Context
	)

	constraints := config.ConstraintsConfig{
		MaxConcurrentPairs: 1,
		CleanupDelay:       30 * time.Minute,
		MaxWaitingTime:     10 * time.Minute,
	}

	BeforeEach(func() {
		ctx = context.Background()
		mockStore = &mockSessionStore{}
		publisher = &mockPublisher{}
		suggester = &mockSuggestService{}

		err := id.Init(1)
		Expect(err).NotTo(HaveOccurred())

		svc = service.NewCallService(mockStore, publisher, suggester, constraints)
	})

	Describe("Create", func() {
		It("creates a waiting session with the constraint snapshot applied", func() {
			var created *model.CallSession
			mockStore.createFn = func(_ context.Context, session *model.CallSession) error {
				created = session
				return nil
			}

			session, err := svc.Create(ctx, "user-1", "operator-1")

			Expect(err).NotTo(HaveOccurred())
			Expect(session.SessionID).To(HavePrefix("session_"))
			Expect(session.ConversationID).To(HavePrefix("conv_"))
			Expect(session.Status).To(Equal(model.SessionStatusWaiting))
			Expect(session.Constraints.MaxConcurrentPairs).To(Equal(1))
			Expect(session.Constraints.MaxWaitingTime).To(Equal(10 * time.Minute))
			Expect(session.Constraints.CleanupAt).To(BeTemporally("~", time.Now().Add(30*time.Minute), time.Minute))
			Expect(session.Participants.User.Status).To(Equal(model.ParticipantStatusWaiting))
			Expect(session.Participants.Operator.Status).To(Equal(model.ParticipantStatusWaiting))
			Expect(created).NotTo(BeNil())
			Expect(publisher.typesSeen()).To(ContainElement(queue.EventSessionCreated))
		})

		It("rejects creation when the concurrent pair limit is reached", func() {
			mockStore.listFn = func(_ context.Context) ([]model.CallSession, error) {
				return []model.CallSession{*waitingSession("session-busy")}, nil
			}

			session, err := svc.Create(ctx, "user-2", "operator-2")

			Expect(err).To(MatchError(service.ErrCapacity))
			Expect(session).To(BeNil())
		})

		It("does not count ended sessions against the limit", func() {
			ended := waitingSession("session-done")
			now := time.Now()
			ended.Status = model.SessionStatusEnded
			ended.EndTime = &now
			mockStore.listFn = func(_ context.Context) ([]model.CallSession, error) {
				return []model.CallSession{*ended}, nil
			}

			_, err := svc.Create(ctx, "user-2", "operator-2")

			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Join", func() {
		var session *model.CallSession

		BeforeEach(func() {
			session = waitingSession("session-1")
			mockStore.bind(session)
		})

		It("keeps the session waiting while only one side has joined", func() {
			result, err := svc.Join(ctx, "session-1", "user-1", model.RoleUser)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(model.SessionStatusWaiting))
			Expect(result.Participants.User.Status).To(Equal(model.ParticipantStatusJoined))
			Expect(publisher.typesSeen()).To(ContainElement(queue.EventParticipantJoined))
			Expect(publisher.typesSeen()).NotTo(ContainElement(queue.EventSessionActivated))
		})

		It("activates once both sides have joined, user first", func() {
			_, err := svc.Join(ctx, "session-1", "user-1", model.RoleUser)
			Expect(err).NotTo(HaveOccurred())

			result, err := svc.Join(ctx, "session-1", "operator-1", model.RoleOperator)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(model.SessionStatusActive))
			Expect(publisher.typesSeen()).To(ContainElement(queue.EventSessionActivated))
		})

		It("activates once both sides have joined, operator first", func() {
			_, err := svc.Join(ctx, "session-1", "operator-1", model.RoleOperator)
			Expect(err).NotTo(HaveOccurred())

			result, err := svc.Join(ctx, "session-1", "user-1", model.RoleUser)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(model.SessionStatusActive))
			Expect(publisher.typesSeen()).To(ContainElement(queue.EventSessionActivated))
		})

		It("preserves the slot's participant id fixed at creation", func() {
			result, err := svc.Join(ctx, "session-1", "impostor-9", model.RoleUser)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Participants.User.ID).To(Equal("user-1"))
			Expect(result.Participants.User.Status).To(Equal(model.ParticipantStatusJoined))
		})

		It("treats a repeated join for the same role as idempotent", func() {
			_, err := svc.Join(ctx, "session-1", "user-1", model.RoleUser)
			Expect(err).NotTo(HaveOccurred())

			result, err := svc.Join(ctx, "session-1", "user-1", model.RoleUser)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(model.SessionStatusWaiting))
			Expect(publisher.typesSeen()).NotTo(ContainElement(queue.EventSessionActivated))
		})

		It("does not reactivate an ended session", func() {
			now := time.Now()
			session.Status = model.SessionStatusEnded
			session.EndTime = &now

			result, err := svc.Join(ctx, "session-1", "user-1", model.RoleUser)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(model.SessionStatusEnded))
			Expect(publisher.typesSeen()).NotTo(ContainElement(queue.EventSessionActivated))
		})

		It("returns not found for an unknown session", func() {
			_, err := svc.Join(ctx, "session-missing", "user-1", model.RoleUser)

			Expect(err).To(MatchError(service.ErrSessionNotFound))
		})

		It("retries when the update loses the version race", func() {
			conflicts := 1
			realUpdate := mockStore.updateFn
			mockStore.updateFn = func(c context.Context, s *model.CallSession) error {
				if conflicts > 0 {
					conflicts--
					return store.ErrConflict
				}
				return realUpdate(c, s)
			}

			result, err := svc.Join(ctx, "session-1", "user-1", model.RoleUser)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Participants.User.Status).To(Equal(model.ParticipantStatusJoined))
		})

		It("gives up after repeated version conflicts", func() {
			mockStore.updateFn = func(_ context.Context, _ *model.CallSession) error {
				return store.ErrConflict
			}

			_, err := svc.Join(ctx, "session-1", "user-1", model.RoleUser)

			Expect(err).To(MatchError(service.ErrConflict))
		})
	})

	Describe("Leave", func() {
		var session *model.CallSession

		BeforeEach(func() {
			session = waitingSession("session-1")
			session.Participants.User.Status = model.ParticipantStatusJoined
			session.Participants.Operator.Status = model.ParticipantStatusJoined
			session.Status = model.SessionStatusActive
			mockStore.bind(session)
		})

		It("ends the whole session when one side leaves", func() {
			result, err := svc.Leave(ctx, "session-1", "user-1", model.RoleUser)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(model.SessionStatusEnded))
			Expect(result.EndTime).NotTo(BeNil())
			Expect(result.Participants.User.Status).To(Equal(model.ParticipantStatusLeft))
			Expect(result.Participants.User.LeftAt).NotTo(BeNil())
			Expect(publisher.typesSeen()).To(ContainElement(queue.EventParticipantLeft))
			Expect(publisher.typesSeen()).To(ContainElement(queue.EventSessionEnded))
		})

		It("keeps ended terminal when the other side leaves afterwards", func() {
			_, err := svc.Leave(ctx, "session-1", "user-1", model.RoleUser)
			Expect(err).NotTo(HaveOccurred())

			result, err := svc.Leave(ctx, "session-1", "operator-1", model.RoleOperator)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(model.SessionStatusEnded))

			endedEvents := 0
			for _, t := range publisher.typesSeen() {
				if t == queue.EventSessionEnded {
					endedEvents++
				}
			}
			Expect(endedEvents).To(Equal(1))
		})
	})

	Describe("End", func() {
		var session *model.CallSession

		BeforeEach(func() {
			session = waitingSession("session-1")
			mockStore.bind(session)
		})

		It("terminates the session and records the end time", func() {
			result, err := svc.End(ctx, "session-1")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(model.SessionStatusEnded))
			Expect(result.EndTime).NotTo(BeNil())
			Expect(publisher.typesSeen()).To(ContainElement(queue.EventSessionEnded))
		})

		It("is idempotent", func() {
			_, err := svc.End(ctx, "session-1")
			Expect(err).NotTo(HaveOccurred())
			firstEnd := *session.EndTime

			result, err := svc.End(ctx, "session-1")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(model.SessionStatusEnded))
			Expect(*result.EndTime).To(Equal(firstEnd))
		})
	})

	Describe("ProcessUserMessage", func() {
		var (
			session  *model.CallSession
			appended []model.ConversationMessage
		)

		BeforeEach(func() {
			session = waitingSession("session-1")
			mockStore.bind(session)

			appended = nil
			mockStore.appendMessageFn = func(_ context.Context, conversationID string, msg model.ConversationMessage) error {
				Expect(conversationID).To(Equal("conv-1"))
				appended = append(appended, msg)
				return nil
			}
		})

		It("appends the user message and the ai reply with the suggestion attached", func() {
			suggester.nextActionFn = func(_ context.Context, req suggest.Request) (*model.Suggestion, error) {
				Expect(req.ConversationID).To(Equal("conv-1"))
				Expect(req.UserMessage).To(Equal("解約したいのですが"))
				return &model.Suggestion{
					Action:            "解決策の提案",
					Priority:          model.PriorityHigh,
					SuggestedResponse: "ご解約の理由をお聞かせいただけますか？",
					Confidence:        92,
				}, nil
			}

			suggestion, err := svc.ProcessUserMessage(ctx, "session-1", "解約したいのですが", "")

			Expect(err).NotTo(HaveOccurred())
			Expect(suggestion.Action).To(Equal("解決策の提案"))
			Expect(appended).To(HaveLen(2))
			Expect(appended[0].Sender).To(Equal(model.SenderUser))
			Expect(appended[0].Message).To(Equal("解約したいのですが"))
			Expect(appended[1].Sender).To(Equal(model.SenderAI))
			Expect(appended[1].Suggestion).NotTo(BeNil())
			Expect(appended[1].Message).To(Equal("ご解約の理由をお聞かせいただけますか？"))
		})

		It("collapses provider errors into a generic failure", func() {
			suggester.nextActionFn = func(_ context.Context, _ suggest.Request) (*model.Suggestion, error) {
				return nil, errors.New("rate limited")
			}

			suggestion, err := svc.ProcessUserMessage(ctx, "session-1", "こんにちは", "")

			Expect(err).To(MatchError(service.ErrSuggestionFail))
			Expect(suggestion).To(BeNil())
			// The user message is already persisted before the provider runs
			Expect(appended).To(HaveLen(1))
			Expect(appended[0].Sender).To(Equal(model.SenderUser))
		})

		It("returns not found for an unknown session", func() {
			_, err := svc.ProcessUserMessage(ctx, "session-missing", "こんにちは", "")

			Expect(err).To(MatchError(service.ErrSessionNotFound))
		})
	})

	Describe("ClearAllSessions", func() {
		It("sweeps the whole store and reports the count", func() {
			swept := false
			mockStore.deleteAllFn = func(_ context.Context) (int, error) {
				swept = true
				return 2, nil
			}

			cleared, err := svc.ClearAllSessions(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(cleared).To(Equal(2))
			Expect(swept).To(BeTrue())
		})
	})
})
