package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func validInput() NewReservation {
	return NewReservation{
		FirstName: "Lucía",
		LastName:  "Martín Gómez",
		Phone:     "612 345 678",
		Date:      "2024-01-10",
		Time:      "21:30",
		PartySize: 4,
	}
}

func TestValidateAcceptsNormalizedInput(t *testing.T) {
	t.Parallel()

	in := validInput().Normalize()
	require.Equal(t, "612345678", in.Phone)
	require.NoError(t, in.Validate("2024-01-10"))
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		mut   func(*NewReservation)
		field string
	}{
		{"blank first name", func(n *NewReservation) { n.FirstName = "   " }, "first_name"},
		{"blank last name", func(n *NewReservation) { n.LastName = "" }, "last_name"},
		{"short phone", func(n *NewReservation) { n.Phone = "61234567" }, "phone"},
		{"letters in phone", func(n *NewReservation) { n.Phone = "61234567a" }, "phone"},
		{"bad date", func(n *NewReservation) { n.Date = "10/01/2024" }, "date"},
		{"past date", func(n *NewReservation) { n.Date = "2024-01-09" }, "date"},
		{"off-slot time", func(n *NewReservation) { n.Time = "17:00" }, "time"},
		{"empty party", func(n *NewReservation) { n.PartySize = 0 }, "party_size"},
		{"party too large", func(n *NewReservation) { n.PartySize = 13 }, "party_size"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			in := validInput()
			tc.mut(&in)
			err := in.Normalize().Validate("2024-01-10")
			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.Contains(t, verr.Fields, tc.field)
			require.Len(t, verr.Fields, 1)
		})
	}
}

func TestValidatePartySizeBounds(t *testing.T) {
	t.Parallel()

	for _, n := range []int{MinPartySize, MaxPartySize} {
		in := validInput()
		in.PartySize = n
		require.NoError(t, in.Normalize().Validate("2024-01-10"))
	}
}

func TestParseFilter(t *testing.T) {
	t.Parallel()

	f, err := ParseFilter("", "")
	require.NoError(t, err)
	require.Equal(t, DefaultFilter(), f)
	require.True(t, f.AnyStatus())

	f, err = ParseFilter("this-week", "seated")
	require.NoError(t, err)
	require.Equal(t, FilterSpec{Scope: ScopeThisWeek, Status: StatusSeated}, f)

	f, err = ParseFilter("all", "all")
	require.NoError(t, err)
	require.True(t, f.AnyStatus())

	_, err = ParseFilter("yesterday", "")
	require.Error(t, err)
	_, err = ParseFilter("today", "no_show")
	require.Error(t, err)
}

func TestStatusLabels(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Seated", StatusSeated.Label())
	require.False(t, StatusAny.Valid())
	_, err := ParseStatus("all")
	require.Error(t, err)
}
