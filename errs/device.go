package errs

// DeviceProtocol identifies the message protocol a Device speaks, as
// surfaced by the ListDevices syscall's protocol_filter argument.
// Grounded on the teacher's defs.Mkdev device-numbering scheme, narrowed to
// the device classes bekOS actually exposes (console/input/framebuffer/
// block), dropping the teacher's UNIX-domain-socket device classes (out of
// scope: this kernel's only local IPC is Interlink, not BSD sockets).
type DeviceProtocol uint32

const (
	ProtocolNone DeviceProtocol = iota
	ProtocolBlock
	ProtocolFramebuffer
	ProtocolKeyboard
	ProtocolConsole
)

func (p DeviceProtocol) String() string {
	switch p {
	case ProtocolBlock:
		return "block"
	case ProtocolFramebuffer:
		return "framebuffer"
	case ProtocolKeyboard:
		return "keyboard"
	case ProtocolConsole:
		return "console"
	default:
		return "none"
	}
}
