package ramp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/vish/memramp/internal/ramp"
)

var _ = Describe("Params", func() {
	DescribeTable("Validate",
		func(p Params, expected error) {
			if expected == nil {
				Expect(p.Validate()).To(Succeed())
			} else {
				Expect(p.Validate()).To(MatchError(expected))
			}
		},
		Entry("valid", Params{InitialMB: 10, FinalMB: 20, DurationSeconds: 5}, nil),
		Entry("valid with wait", Params{InitialMB: 0, FinalMB: 1, DurationSeconds: 1, InitialWaitSeconds: 3}, nil),
		Entry("initial above final", Params{InitialMB: 50, FinalMB: 40, DurationSeconds: 3}, ErrInitialNotBelowFinal),
		Entry("initial equals final", Params{InitialMB: 40, FinalMB: 40, DurationSeconds: 3}, ErrInitialNotBelowFinal),
		Entry("zero duration", Params{InitialMB: 1, FinalMB: 2}, ErrNonPositiveDuration),
		Entry("negative duration", Params{InitialMB: 1, FinalMB: 2, DurationSeconds: -1}, ErrNonPositiveDuration),
		Entry("negative wait", Params{InitialMB: 1, FinalMB: 2, DurationSeconds: 1, InitialWaitSeconds: -1}, ErrNegativeWait),
		Entry("negative initial", Params{InitialMB: -1, FinalMB: 2, DurationSeconds: 1}, ErrNegativeInitial),
		Entry("memory checked before duration", Params{InitialMB: 3, FinalMB: 2, DurationSeconds: 0, InitialWaitSeconds: -1}, ErrInitialNotBelowFinal),
	)

	It("reports the validation messages verbatim", func() {
		Expect(ErrInitialNotBelowFinal.Error()).To(Equal("Initial memory must be less than final memory"))
		Expect(ErrNonPositiveDuration.Error()).To(Equal("Duration must be greater than 0"))
		Expect(ErrNegativeWait.Error()).To(Equal("Initial wait time cannot be negative"))
	})

	It("computes the rate in MB per second", func() {
		Expect(Params{InitialMB: 10, FinalMB: 20, DurationSeconds: 4}.Rate()).To(BeNumerically("==", 2.5))
	})
})
