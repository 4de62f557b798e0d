package pump

// Controller defines the interface for peristaltic pump controllers (real or mocked).
type Controller interface {
	SetSpeed(channel, speed int) error
	SetDirection(channel int, dir Direction) error
	Start(channel int) error
	Stop(channel int) error
	GetSpeed(channel int) (string, error)
	GetAlarm(channel int) (string, error)
	Close() error
}

// Ensure Pump implements Controller.
var _ Controller = (*Pump)(nil)
