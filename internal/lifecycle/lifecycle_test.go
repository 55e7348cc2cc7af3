package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ricemill/internal/apperror"
)

type light string

const (
	red    light = "RED"
	green  light = "GREEN"
	yellow light = "YELLOW"
	off    light = "OFF"
)

type lamp struct {
	powered bool
}

func newLampMachine() *Machine[light, *lamp] {
	return New[light, *lamp]("lamp",
		Transition[light, *lamp]{From: []light{red}, To: green, Require: func(l *lamp) error {
			if !l.powered {
				return apperror.PreconditionFailed("lamp has no power")
			}
			return nil
		}},
		Transition[light, *lamp]{From: []light{green}, To: yellow},
		Transition[light, *lamp]{From: []light{yellow}, To: red},
		Transition[light, *lamp]{From: []light{red, green, yellow}, To: off, Rejection: apperror.KindInvalidState},
	)
}

func TestMachine_Check(t *testing.T) {
	m := newLampMachine()

	testCases := []struct {
		name     string
		subject  *lamp
		from, to light
		wantKind apperror.Kind
	}{
		{"allowed move", &lamp{powered: true}, red, green, ""},
		{"allowed move without precondition", &lamp{}, green, yellow, ""},
		{"skipped step", &lamp{powered: true}, red, yellow, apperror.KindInvalidTransition},
		{"precondition fails", &lamp{}, red, green, apperror.KindPreconditionFailed},
		{"terminal source uses rejection kind", &lamp{}, off, off, apperror.KindInvalidState},
		{"unknown source", &lamp{}, off, green, apperror.KindInvalidTransition},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := m.Check(tc.subject, tc.from, tc.to)
			if tc.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.wantKind, apperror.KindOf(err))
		})
	}
}

func TestMachine_TargetsAndCan(t *testing.T) {
	m := newLampMachine()

	assert.Equal(t, []light{green, off}, m.Targets(red))
	assert.Equal(t, []light{yellow, off}, m.Targets(green))
	assert.Empty(t, m.Targets(off))
	assert.True(t, m.Can(yellow, red))
	assert.False(t, m.Can(off, red))
}

func TestMachine_ErrorsIsSentinel(t *testing.T) {
	m := newLampMachine()
	err := m.Check(&lamp{}, green, red)
	assert.True(t, errors.Is(err, apperror.ErrInvalidTransition))
	assert.False(t, errors.Is(err, apperror.ErrNotFound))
}
