package pump

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock_Responses(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"start", "start 1", "OK start 1"},
		{"stop", "stop 2", "OK stop 2"},
		{"setspeed", "setspeed 1 30", "OK setspeed 1 30"},
		{"setspeed missing value", "setspeed 1", "ERR setspeed needs a value"},
		{"setdir invalid", "setdir 1 7", "ERR setdir needs 0 or 1"},
		{"unknown channel", "start 9", "ERR no channel 9"},
		{"unknown command", "spin 1", "ERR unknown command spin"},
		{"bad channel", "start x", "ERR bad channel x"},
		{"empty", "", "ERR "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMock(1, 2)
			_, err := m.Write([]byte(tt.line + "\n"))
			require.NoError(t, err)

			buf := make([]byte, 128)
			n, err := m.Read(buf)
			require.NoError(t, err)
			assert.Equal(t, tt.want+"\n", string(buf[:n]))
		})
	}
}

func TestMock_PartialWrites(t *testing.T) {
	m := NewMock(1)
	_, err := m.Write([]byte("setsp"))
	require.NoError(t, err)
	_, err = m.Write([]byte("eed 1 12\nstart 1\n"))
	require.NoError(t, err)

	st, _ := m.State(1)
	assert.Equal(t, 12, st.Speed)
	assert.True(t, st.Running)
	assert.Equal(t, []string{"setspeed 1 12", "start 1"}, m.Lines())
}

func TestMock_Close(t *testing.T) {
	m := NewMock(1)
	require.NoError(t, m.Close())

	_, err := m.Write([]byte("start 1\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
