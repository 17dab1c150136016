package dhcp

// OptNum is a DHCP option code (RFC 2132), trimmed to the set this client
// sends or reads.
type OptNum uint8

const (
	OptPad                 OptNum = 0
	OptSubnetMask          OptNum = 1
	OptRouter              OptNum = 3
	OptDNS                 OptNum = 6
	OptHostname            OptNum = 12
	OptRequestedIPAddress  OptNum = 50
	OptIPAddressLeaseTime  OptNum = 51
	OptMessageType         OptNum = 53
	OptServerIdentifier    OptNum = 54
	OptParameterRequest    OptNum = 55
	OptClientIdentifier    OptNum = 61
	OptEnd                 OptNum = 255
)

// MessageType is the value carried by OptMessageType.
type MessageType uint8

const (
	MsgDiscover MessageType = 1
	MsgOffer    MessageType = 2
	MsgRequest  MessageType = 3
	MsgDecline  MessageType = 4
	MsgAck      MessageType = 5
	MsgNak      MessageType = 6
	MsgRelease  MessageType = 7
	MsgInform   MessageType = 8
)
