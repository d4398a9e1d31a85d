package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/mock/gomock"

	"fishtank/internal/forms/models"
	"fishtank/internal/forms/service/mocks"
	"fishtank/internal/forms/ticket"
	"fishtank/pkg/domain"
	dErrors "fishtank/pkg/domain-errors"
)

var creatorValues = models.Values{
	"email": "a@b.co",
	"name":  "Ann",
	"phone": "555",
	"skill": "Video",
}

func (s *ServiceSuite) TestOpen() {
	s.Run("defaults to innovator", func() {
		res, err := s.service.Open(context.Background(), models.FormApply, "")
		s.Require().NoError(err)
		s.Equal(models.RoleInnovator, res.Session.State.Role())
		s.Equal(s.now, res.Session.MountedAt)
		s.NotEmpty(res.Ticket)

		stored, err := s.sessions.FindByID(context.Background(), res.Session.InstanceID)
		s.Require().NoError(err)
		s.Same(res.Session, stored)
	})

	s.Run("initial role from input", func() {
		res, err := s.service.Open(context.Background(), models.FormApply, "Investor")
		s.Require().NoError(err)
		s.Equal(models.RoleInvestor, res.Session.State.Role())
	})

	s.Run("unknown role", func() {
		_, err := s.service.Open(context.Background(), models.FormApply, "pirate")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown form", func() {
		_, err := s.service.Open(context.Background(), models.FormName("survey"), "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("feedback has no role", func() {
		res, err := s.service.Open(context.Background(), models.FormFeedback, "creator")
		s.Require().NoError(err)
		s.Equal(models.Role(""), res.Session.State.Role())
	})
}

func (s *ServiceSuite) TestSchema() {
	res, err := s.service.Schema(models.FormApply, "creator")
	s.Require().NoError(err)
	s.Equal(models.RoleCreator, res.Role)

	keys := make([]string, 0, len(res.Fields))
	for _, f := range res.Fields {
		keys = append(keys, f.Key)
	}
	if diff := cmp.Diff([]string{"email", "name", "phone", "skill", "website"}, keys); diff != "" {
		s.Failf("creator fields mismatch", "(-want +got):\n%s", diff)
	}
}

func (s *ServiceSuite) TestSubmitCreatorSuccess() {
	tk := s.open(models.FormApply, "creator")
	s.advance(5 * time.Second)

	s.mockDispatcher.EXPECT().
		Dispatch(gomock.Any(), models.Dispatch{
			Form:    models.FormApply,
			Role:    models.RoleCreator,
			Subject: "New Application",
			Values:  creatorValues,
		}).
		Return(nil)

	res, err := s.service.Submit(context.Background(), models.SubmitCommand{
		Form: models.FormApply, Ticket: tk, Values: creatorValues.Clone(),
	})
	s.Require().NoError(err)
	s.Equal(models.OutcomeSuccess, res.Outcome.Kind)
	s.Equal(models.StateSuccess, res.Report.State)
	s.Equal("Thanks! You joined the waitlist as Creator. We'll be in touch.", res.Report.Message)
	s.Empty(res.Values, "holder is cleared after success")
	s.Equal(models.RoleCreator, res.Role, "role is kept after success")
}

func (s *ServiceSuite) TestSubmitValidationFailure() {
	tk := s.open(models.FormApply, "innovator")
	s.advance(5 * time.Second)

	values := models.Values{"email": "a@b.co", "name": "Ann", "phone": "555", "building": "   "}
	res, err := s.service.Submit(context.Background(), models.SubmitCommand{
		Form: models.FormApply, Ticket: tk, Values: values,
	})
	s.Require().NoError(err)
	s.Equal(models.OutcomeValidationFailed, res.Outcome.Kind)
	s.Equal("Please fill: What are you building?", res.Report.Message)
	s.Equal(models.StateError, res.Report.State)
	s.Equal(values, res.Values, "values are kept on failure")
}

func (s *ServiceSuite) TestSubmitBotDetected() {
	tk := s.open(models.FormApply, "")
	s.advance(10 * time.Second)

	res, err := s.service.Submit(context.Background(), models.SubmitCommand{
		Form: models.FormApply, Ticket: tk, Values: creatorValues.Clone(), Role: "creator",
		Honeypot: "spam.example",
	})
	s.Require().NoError(err)
	s.Equal(models.OutcomeSpamRejected, res.Outcome.Kind)
	s.Equal(models.ReasonBotDetected, res.Outcome.SpamReason)
	s.Equal(MessageSpamBlocked, res.Report.Message)
	s.NotContains(res.Report.Message, "bot")
}

func (s *ServiceSuite) TestSubmitTooFast() {
	tk := s.open(models.FormFeedback, "")
	s.advance(1200 * time.Millisecond)

	res, err := s.service.Submit(context.Background(), models.SubmitCommand{
		Form: models.FormFeedback, Ticket: tk,
		Values: models.Values{"name": "Ann", "email": "a@b.co", "message": "hi"},
	})
	s.Require().NoError(err)
	s.Equal(models.OutcomeSpamRejected, res.Outcome.Kind)
	s.Equal(models.ReasonTooFast, res.Outcome.SpamReason)
	s.Equal(MessageSpamBlocked, res.Report.Message)
}

func (s *ServiceSuite) TestSubmitGuardRunsBeforeValidation() {
	tk := s.open(models.FormFeedback, "")
	s.advance(time.Second)

	res, err := s.service.Submit(context.Background(), models.SubmitCommand{
		Form: models.FormFeedback, Ticket: tk,
	})
	s.Require().NoError(err)
	s.Equal(models.OutcomeSpamRejected, res.Outcome.Kind)
}

func (s *ServiceSuite) TestSubmitDispatchFailures() {
	feedback := models.Values{"name": "Ann", "email": "a@b.co", "message": "hi"}
	cases := []struct {
		name    string
		err     error
		kind    models.OutcomeKind
		message string
	}{
		{"relay rejection", dErrors.New(dErrors.CodeRelayRejected, "Quota exceeded"), models.OutcomeRelayRejected, "Error: Quota exceeded"},
		{"transport error", dErrors.New(dErrors.CodeRelayUnavailable, "dial tcp: refused"), models.OutcomeTransportError, "There was an error submitting your message. Please try again later."},
		{"unclassified error", errors.New("boom"), models.OutcomeTransportError, "There was an error submitting your message. Please try again later."},
		{"missing configuration", dErrors.New(dErrors.CodeConfigMissing, "no url"), models.OutcomeConfigMissing, MessageConfigMissing},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			tk := s.open(models.FormFeedback, "")
			s.advance(4 * time.Second)
			s.mockDispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(tc.err)

			res, err := s.service.Submit(context.Background(), models.SubmitCommand{
				Form: models.FormFeedback, Ticket: tk, Values: feedback.Clone(),
			})
			s.Require().NoError(err)
			s.Equal(tc.kind, res.Outcome.Kind)
			s.Equal(tc.message, res.Report.Message)
			s.Equal(feedback, res.Values)
		})
	}
}

func (s *ServiceSuite) TestSubmitAfterFailureRetriesWithSameValues() {
	tk := s.open(models.FormApply, "creator")
	s.advance(5 * time.Second)

	gomock.InOrder(
		s.mockDispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).
			Return(dErrors.New(dErrors.CodeRelayUnavailable, "timeout")),
		s.mockDispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, d models.Dispatch) error {
				s.Equal(creatorValues, d.Values)
				return nil
			}),
	)

	_, err := s.service.Submit(context.Background(), models.SubmitCommand{
		Form: models.FormApply, Ticket: tk, Values: creatorValues.Clone(),
	})
	s.Require().NoError(err)

	res, err := s.service.Submit(context.Background(), models.SubmitCommand{
		Form: models.FormApply, Ticket: tk,
	})
	s.Require().NoError(err)
	s.Equal(models.OutcomeSuccess, res.Outcome.Kind)
}

func (s *ServiceSuite) TestSubmitOnlyActiveFieldsAreSent() {
	tk := s.open(models.FormApply, "innovator")
	s.advance(5 * time.Second)

	_, err := s.service.Update(context.Background(), models.UpdateCommand{
		Form: models.FormApply, Ticket: tk,
		Values: models.Values{"building": "rockets", "stage": "MVP"},
	})
	s.Require().NoError(err)

	s.mockDispatcher.EXPECT().
		Dispatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d models.Dispatch) error {
			s.Equal(models.RoleCreator, d.Role)
			s.Equal(creatorValues, d.Values)
			return nil
		})

	res, err := s.service.Submit(context.Background(), models.SubmitCommand{
		Form: models.FormApply, Ticket: tk, Role: "creator", Values: creatorValues.Clone(),
	})
	s.Require().NoError(err)
	s.Equal(models.OutcomeSuccess, res.Outcome.Kind)
}

func (s *ServiceSuite) TestUpdateRoleSwitchKeepsValues() {
	tk := s.open(models.FormApply, "innovator")

	snap, err := s.service.Update(context.Background(), models.UpdateCommand{
		Form: models.FormApply, Ticket: tk,
		Values: models.Values{"email": "a@b.co", "building": "rockets", "bogus": "x"},
	})
	s.Require().NoError(err)
	s.Equal(models.Values{"email": "a@b.co", "building": "rockets"}, snap.Values)

	snap, err = s.service.Update(context.Background(), models.UpdateCommand{
		Form: models.FormApply, Ticket: tk, Role: "investor",
	})
	s.Require().NoError(err)
	s.Equal(models.RoleInvestor, snap.Role)
	s.Equal(models.Values{"email": "a@b.co"}, snap.Values)

	snap, err = s.service.Update(context.Background(), models.UpdateCommand{
		Form: models.FormApply, Ticket: tk, Role: "innovator",
	})
	s.Require().NoError(err)
	s.Equal(models.Values{"email": "a@b.co", "building": "rockets"}, snap.Values)
}

func (s *ServiceSuite) TestTickets() {
	s.Run("garbage ticket", func() {
		_, err := s.service.Submit(context.Background(), models.SubmitCommand{
			Form: models.FormApply, Ticket: "not-a-ticket",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTicket))
	})

	s.Run("ticket of another form", func() {
		tk := s.open(models.FormFeedback, "")
		_, err := s.service.Submit(context.Background(), models.SubmitCommand{
			Form: models.FormApply, Ticket: tk,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTicket))
	})

	s.Run("evicted session is recreated with original mount time", func() {
		other := ticket.New("test-signing-key-with-enough-bytes", time.Hour,
			ticket.WithClock(func() time.Time { return s.now }))
		mountedAt := s.now
		sess := models.NewSession(domain.NewInstanceID(), models.FormFeedback, "", mountedAt, time.Hour)
		tk, err := other.Issue(sess)
		s.Require().NoError(err)

		s.advance(time.Second)
		res, err := s.service.Submit(context.Background(), models.SubmitCommand{
			Form: models.FormFeedback, Ticket: tk,
			Values: models.Values{"name": "Ann", "email": "a@b.co", "message": "hi"},
		})
		s.Require().NoError(err)
		s.Equal(models.ReasonTooFast, res.Outcome.SpamReason)

		revived, err := s.sessions.FindByID(context.Background(), sess.InstanceID)
		s.Require().NoError(err)
		s.Equal(mountedAt.UnixMilli(), revived.MountedAt.UnixMilli())
	})
}

func (s *ServiceSuite) TestBusyRefusalDoesNotMutate() {
	tk := s.open(models.FormApply, "creator")
	s.advance(5 * time.Second)
	_, err := s.service.Update(context.Background(), models.UpdateCommand{
		Form: models.FormApply, Ticket: tk, Values: models.Values{"name": "Ann"},
	})
	s.Require().NoError(err)

	v, err := s.tickets.Verify(tk)
	s.Require().NoError(err)
	sess, err := s.sessions.FindByID(context.Background(), v.InstanceID)
	s.Require().NoError(err)
	s.Require().True(sess.TryBegin())
	defer sess.End()

	res, err := s.service.Submit(context.Background(), models.SubmitCommand{
		Form: models.FormApply, Ticket: tk, Role: "investor", Values: models.Values{"name": "Bob"},
	})
	s.Require().NoError(err)
	s.Equal(models.OutcomeBusy, res.Outcome.Kind)
	s.Equal(models.StateSubmitting, res.Report.State)
	s.Equal(models.RoleCreator, sess.State.Role())
	s.Equal(models.Values{"name": "Ann"}, sess.State.CurrentValues())
}

func (s *ServiceSuite) TestUpdateRefusedWhileSubmitting() {
	tk := s.open(models.FormApply, "creator")
	_, err := s.service.Update(context.Background(), models.UpdateCommand{
		Form: models.FormApply, Ticket: tk, Values: models.Values{"name": "Ann", "skill": "Go"},
	})
	s.Require().NoError(err)

	v, err := s.tickets.Verify(tk)
	s.Require().NoError(err)
	sess, err := s.sessions.FindByID(context.Background(), v.InstanceID)
	s.Require().NoError(err)
	s.Require().True(sess.TryBegin())

	_, err = s.service.Update(context.Background(), models.UpdateCommand{
		Form: models.FormApply, Ticket: tk, Role: "investor", Values: models.Values{"name": "Bob"},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeBusy))
	s.Equal(models.RoleCreator, sess.State.Role())
	s.Equal(models.Values{"name": "Ann", "skill": "Go"}, sess.State.CurrentValues())

	snap, err := s.service.Update(context.Background(), models.UpdateCommand{Form: models.FormApply, Ticket: tk})
	s.Require().NoError(err, "reading the state is allowed while submitting")
	s.Equal(models.Values{"name": "Ann", "skill": "Go"}, snap.Values)
	s.True(sess.InFlight())

	sess.End()
	snap, err = s.service.Update(context.Background(), models.UpdateCommand{
		Form: models.FormApply, Ticket: tk, Values: models.Values{"name": "Bob"},
	})
	s.Require().NoError(err)
	s.Equal("Bob", snap.Values["name"])
	s.False(sess.InFlight())
}

func (s *ServiceSuite) TestStoreFailure() {
	ctrl := gomock.NewController(s.T())
	sessions := mocks.NewMockSessionStore(ctrl)
	tickets := mocks.NewMockTicketService(ctrl)
	svc, err := New(mocksCatalog(ctrl), sessions, tickets, s.mockDispatcher, nil)
	s.Require().NoError(err)

	tickets.EXPECT().Verify("tk").Return(&ticket.Verified{
		InstanceID: domain.NewInstanceID(), Form: models.FormFeedback, MountedAt: s.now,
	}, nil)
	sessions.EXPECT().FindOrCreate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, false, errors.New("store down"))

	_, err = svc.Submit(context.Background(), models.SubmitCommand{Form: models.FormFeedback, Ticket: "tk"})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func mocksCatalog(ctrl *gomock.Controller) *mocks.MockFormCatalog {
	c := mocks.NewMockFormCatalog(ctrl)
	def := models.NewFixedForm(models.FormFeedback, "New Feedback - Fishtank",
		models.Messages{Success: "ok", Noun: "message"},
		[]models.FieldDefinition{{Key: "message", Label: "Message", Kind: models.KindTextarea, Required: true}})
	c.EXPECT().Form(models.FormFeedback).Return(def, true).AnyTimes()
	return c
}

func (s *ServiceSuite) TestNewRequiresDependencies() {
	_, err := New(nil, s.sessions, s.tickets, s.mockDispatcher, nil)
	s.Error(err)
}
