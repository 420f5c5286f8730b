package apperror

var (
	// Connection-fatal
	ErrMissingToken = Unauthenticated("missing bearer token")
	ErrInvalidToken = Unauthenticated("invalid or expired token")
	ErrBanned       = New(KindBanned, "account is banned")

	// Teams
	ErrAlreadyOnTeam   = New(KindAlreadyOnTeam, "user is already on a team")
	ErrTeamFull        = New(KindTeamFull, "team is full")
	ErrTeamNotFound    = New(KindTeamNotFound, "team not found")
	ErrNotLeader       = New(KindNotLeader, "only the team leader can do that")
	ErrNotOnTeam       = New(KindNotOnTeam, "you are not a member of this team")
	ErrInviteNotFound  = New(KindInviteNotFound, "invite not found")
	ErrInviteNotForYou = New(KindInviteNotForYou, "invite was issued to another user")
	ErrInviteExpired   = New(KindInviteExpired, "invite has expired")
	ErrInviteConsumed  = New(KindInviteConsumed, "invite was already used")

	// Presence and chat
	ErrRecipientOffline       = New(KindRecipientOffline, "user is offline, try again once they are online")
	ErrMessageTooLong         = New(KindMessageTooLong, "message exceeds maximum length")
	ErrMessageEmpty           = InvalidInput("message content cannot be empty")
	ErrInvalidChannelSelector = New(KindInvalidChannelSelector, "exactly one of receiver_id or team_id must match the channel")
	ErrMessageNotFound        = NotFound("message not found")
	ErrSessionNotFound        = NotFound("no active session for user")
	ErrDeliveryFailed         = New(KindDeliveryFailed, "message could not be delivered, please retry")
)
