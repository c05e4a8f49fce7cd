// Package errors provides custom service error types.

package errors

type (
	ServiceFoundNilArgument struct {
		Msg string
	}
	ServiceInvalidEmail struct {
		Msg string
	}
	ServiceWeakPassword struct {
		Msg string
	}
	ServiceMissingField struct {
		Msg string
	}
	ServiceInvalidAmount struct {
		Msg string
	}
	ServiceNotEnoughFunds struct {
		Msg string
	}
	ServiceUnknownPlan struct {
		Msg string
	}
	ServiceBelowPlanMinimum struct {
		Msg string
	}
	ServiceIllegalStatus struct {
		Msg string
	}
	ServiceAccessDenied struct {
		Msg string
	}
)

func (e *ServiceFoundNilArgument) Error() string {
	return e.Msg
}

func (e *ServiceInvalidEmail) Error() string {
	return e.Msg
}

func (e *ServiceWeakPassword) Error() string {
	return e.Msg
}

func (e *ServiceMissingField) Error() string {
	return e.Msg
}

func (e *ServiceInvalidAmount) Error() string {
	return e.Msg
}

func (e *ServiceNotEnoughFunds) Error() string {
	return e.Msg
}

func (e *ServiceUnknownPlan) Error() string {
	return e.Msg
}

func (e *ServiceBelowPlanMinimum) Error() string {
	return e.Msg
}

func (e *ServiceIllegalStatus) Error() string {
	return e.Msg
}

func (e *ServiceAccessDenied) Error() string {
	return e.Msg
}
