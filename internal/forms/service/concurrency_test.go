package service

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/mock/gomock"

	"fishtank/internal/forms/models"
	dErrors "fishtank/pkg/domain-errors"
	"fishtank/pkg/testutil"
)

func (s *ServiceSuite) TestConcurrentSubmitSingleFlight() {
	const attempts = 20
	tk := s.open(models.FormApply, "creator")
	s.advance(5 * time.Second)

	var busy atomic.Int32
	s.mockDispatcher.EXPECT().
		Dispatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, models.Dispatch) error {
			// Hold the slot until every other attempt has been refused.
			deadline := time.Now().Add(2 * time.Second)
			for busy.Load() < attempts-1 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			return nil
		}).
		Times(1)

	result := testutil.RunConcurrent(attempts, func(int) error {
		res, err := s.service.Submit(context.Background(), models.SubmitCommand{
			Form: models.FormApply, Ticket: tk, Values: creatorValues.Clone(),
		})
		if err != nil {
			return err
		}
		if res.Outcome.Kind == models.OutcomeBusy {
			busy.Add(1)
			return dErrors.New(dErrors.CodeBusy, res.Report.Message)
		}
		return nil
	})

	s.Equal(int32(1), result.Successes)
	s.Equal(int32(attempts-1), result.Busy)
	s.Zero(result.Errors)
}

func (s *ServiceSuite) TestConcurrentSubmitsOnSeparateInstances() {
	const instances = 8
	tickets := make([]string, instances)
	for i := range tickets {
		tickets[i] = s.open(models.FormFeedback, "")
	}
	s.advance(5 * time.Second)
	s.mockDispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(nil).Times(instances)

	result := testutil.RunConcurrent(instances, func(i int) error {
		res, err := s.service.Submit(context.Background(), models.SubmitCommand{
			Form: models.FormFeedback, Ticket: tickets[i],
			Values: models.Values{"name": "Ann", "email": "a@b.co", "message": "hi"},
		})
		if err != nil {
			return err
		}
		if !res.Outcome.Succeeded() {
			return dErrors.New(dErrors.CodeInternal, string(res.Outcome.Kind))
		}
		return nil
	})
	s.Equal(int32(instances), result.Successes)
}
