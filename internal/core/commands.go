package core

import (
	"fmt"
	"slices"
	"strings"

	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

const CommandPrefix = "!"

const (
	CmdKick       = "kick"
	CmdBan        = "ban"
	CmdUnban      = "unban"
	CmdKickAll    = "kickall"
	CmdBanAll     = "banall"
	CmdLockRoom   = "lockroom"
	CmdUnlockRoom = "unlockroom"
	CmdWhitelist  = "whitelist"
)

// Command is a parsed owner command. Name is lower case without the prefix.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.TrimSpace(CommandPrefix + c.Name + " " + strings.Join(c.Args, " "))
}

// IsCommand reports whether a chat line should be routed to the command endpoint.
func IsCommand(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), CommandPrefix)
}

// ParseCommand accepts either a bare name with separate args or a whole line
// in command with args empty.
func ParseCommand(command string, args []string) (Command, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], CommandPrefix) {
		return Command{}, domain.Errorf(domain.KindBadRequest, "Commands must start with %q.", CommandPrefix)
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], CommandPrefix))
	if name == "" {
		return Command{}, domain.Errorf(domain.KindBadRequest, "Missing command name.")
	}
	rest := fields[1:]
	for _, a := range args {
		rest = append(rest, strings.Fields(a)...)
	}
	return Command{Name: name, Args: rest}, nil
}

type CommandResult struct {
	Room     *domain.Room
	Mutation Mutation
	// Notification is nil for status-only commands.
	Notification *domain.Notification
	Message      string
}

// Authorize fails with Forbidden unless callerID owns the room.
func Authorize(room *domain.Room, callerID domain.UserID) error {
	if callerID == "" || room.OwnerID != callerID {
		return domain.Errorf(domain.KindForbidden, "Only the room owner can use commands.")
	}
	return nil
}

// Execute authorizes the caller, then parses and applies one command.
// Ownership is checked before parsing so non-owners never learn whether a command exists.
func Execute(room *domain.Room, callerID domain.UserID, command string, args []string) (CommandResult, error) {
	if err := Authorize(room, callerID); err != nil {
		return CommandResult{}, err
	}
	cmd, err := ParseCommand(command, args)
	if err != nil {
		return CommandResult{}, err
	}
	next := room.Clone()
	caller, _ := next.Member(callerID)
	x := executor{room: next, caller: caller}

	switch cmd.Name {
	case CmdKick:
		return x.remove(cmd.Args, false)
	case CmdBan:
		return x.remove(cmd.Args, true)
	case CmdUnban:
		return x.unban(cmd.Args)
	case CmdKickAll:
		return x.removeAll(false)
	case CmdBanAll:
		return x.removeAll(true)
	case CmdLockRoom:
		return x.setLock(true)
	case CmdUnlockRoom:
		return x.setLock(false)
	case CmdWhitelist:
		return x.whitelist(cmd.Args)
	}
	return CommandResult{}, domain.Errorf(domain.KindBadRequest, "Unknown command: %s.", cmd.Name)
}

type executor struct {
	room   *domain.Room
	caller domain.Member
}

func (x executor) notify(action domain.Action, msg string, targets []domain.UserID, targetName string) (CommandResult, error) {
	return CommandResult{
		Room:     x.room,
		Mutation: Save,
		Notification: &domain.Notification{
			Action:         action,
			Message:        msg,
			RoomCode:       x.room.Code,
			ActorID:        x.caller.UserID,
			TargetIDs:      targets,
			TargetUsername: targetName,
		},
		Message: msg,
	}, nil
}

func (x executor) status(msg string) (CommandResult, error) {
	return CommandResult{Room: x.room, Mutation: Keep, Message: msg}, nil
}

func (x executor) remove(args []string, ban bool) (CommandResult, error) {
	name := strings.Join(args, " ")
	if name == "" {
		return CommandResult{}, domain.Errorf(domain.KindBadRequest, "Usage: %s%s <username>.", CommandPrefix, verb(ban))
	}
	if strings.EqualFold(name, x.caller.Username) {
		return CommandResult{}, domain.Errorf(domain.KindConflict, "You cannot %s yourself.", verb(ban))
	}
	target, ok := x.room.FindMemberByName(name)
	if !ok {
		return CommandResult{}, domain.Errorf(domain.KindNotFound, "No member named %s.", name)
	}
	if target.UserID == x.caller.UserID {
		return CommandResult{}, domain.Errorf(domain.KindConflict, "You cannot %s yourself.", verb(ban))
	}

	x.room.Members = slices.DeleteFunc(x.room.Members, func(m domain.Member) bool { return m.UserID == target.UserID })
	targets := []domain.UserID{target.UserID}
	if !ban {
		return x.notify(domain.ActionKick, fmt.Sprintf("%s has been kicked from the room.", target.Username), targets, target.Username)
	}
	x.addBans(target.Ref())
	return x.notify(domain.ActionBan, fmt.Sprintf("%s has been banned from the room.", target.Username), targets, target.Username)
}

func (x executor) unban(args []string) (CommandResult, error) {
	name := strings.Join(args, " ")
	if name == "" {
		return CommandResult{}, domain.Errorf(domain.KindBadRequest, "Usage: %sunban <username>.", CommandPrefix)
	}
	ref, ok := domain.FindRefByName(x.room.BannedUsers, name)
	if !ok {
		return CommandResult{}, domain.Errorf(domain.KindNotFound, "No banned user named %s.", name)
	}
	x.room.BannedUsers = slices.DeleteFunc(x.room.BannedUsers, func(u domain.UserRef) bool { return u.ID == ref.ID })
	return x.notify(domain.ActionUnban, fmt.Sprintf("%s has been unbanned.", ref.Username), []domain.UserID{ref.ID}, ref.Username)
}

func (x executor) removeAll(ban bool) (CommandResult, error) {
	var gone []domain.Member
	kept := x.room.Members[:0]
	for _, m := range x.room.Members {
		if m.UserID == x.caller.UserID {
			kept = append(kept, m)
			continue
		}
		gone = append(gone, m)
	}
	if len(gone) == 0 {
		return CommandResult{}, domain.Errorf(domain.KindBadRequest, "There is nobody else to %s.", verb(ban))
	}
	x.room.Members = kept

	targets := make([]domain.UserID, 0, len(gone))
	refs := make([]domain.UserRef, 0, len(gone))
	for _, m := range gone {
		targets = append(targets, m.UserID)
		refs = append(refs, m.Ref())
	}
	if !ban {
		return x.notify(domain.ActionKickAll, fmt.Sprintf("%s kicked everyone from the room.", x.caller.Username), targets, "")
	}
	x.addBans(refs...)
	return x.notify(domain.ActionBanAll, fmt.Sprintf("%s banned everyone from the room.", x.caller.Username), targets, "")
}

func (x executor) addBans(refs ...domain.UserRef) {
	for _, r := range refs {
		if !x.room.IsBanned(r.ID) {
			x.room.BannedUsers = append(x.room.BannedUsers, r)
		}
		x.room.Knocks = slices.DeleteFunc(x.room.Knocks, func(k domain.UserRef) bool { return k.ID == r.ID })
	}
}

func (x executor) setLock(lock bool) (CommandResult, error) {
	if x.room.IsLocked == lock {
		if lock {
			return CommandResult{}, domain.Errorf(domain.KindBadRequest, "The room is already locked.")
		}
		return CommandResult{}, domain.Errorf(domain.KindBadRequest, "The room is not locked.")
	}
	x.room.IsLocked = lock
	if lock {
		return x.notify(domain.ActionLock, "The room has been locked.", nil, "")
	}
	return x.notify(domain.ActionUnlock, "The room has been unlocked.", nil, "")
}

// whitelist handles "on", "off", "on add <u>" and "on remove <u>".
func (x executor) whitelist(args []string) (CommandResult, error) {
	usage := domain.Errorf(domain.KindBadRequest, "Usage: %swhitelist on|off, %swhitelist on add|remove <username>.", CommandPrefix, CommandPrefix)
	if len(args) == 0 {
		return CommandResult{}, usage
	}
	switch strings.ToLower(args[0]) {
	case "off":
		if len(args) > 1 {
			return CommandResult{}, usage
		}
		return x.status(fmt.Sprintf("Whitelist is off. %d user(s) remain on the list.", len(x.room.WhitelistedUsers)))
	case "on":
	default:
		return CommandResult{}, usage
	}
	if len(args) == 1 {
		names := make([]string, 0, len(x.room.WhitelistedUsers))
		for _, u := range x.room.WhitelistedUsers {
			names = append(names, u.Username)
		}
		if len(names) == 0 {
			return x.status("Whitelist is on. Nobody is whitelisted yet.")
		}
		return x.status("Whitelist is on: " + strings.Join(names, ", ") + ".")
	}
	name := strings.Join(args[2:], " ")
	if name == "" {
		return CommandResult{}, usage
	}
	switch strings.ToLower(args[1]) {
	case "add":
		return x.whitelistAdd(name)
	case "remove":
		return x.whitelistRemove(name)
	}
	return CommandResult{}, usage
}

func (x executor) whitelistAdd(name string) (CommandResult, error) {
	var ref domain.UserRef
	if m, ok := x.room.FindMemberByName(name); ok {
		ref = m.Ref()
	} else if k, ok := lastRefByName(x.room.Knocks, name); ok {
		ref = k
	} else {
		return CommandResult{}, domain.Errorf(domain.KindNotFound, "No member named %s.", name)
	}
	if x.room.IsWhitelisted(ref.ID) {
		return CommandResult{}, domain.Errorf(domain.KindConflict, "%s is already whitelisted.", ref.Username)
	}
	x.room.WhitelistedUsers = append(x.room.WhitelistedUsers, ref)
	return x.notify(domain.ActionWhitelistAdd, fmt.Sprintf("%s has been added to the whitelist.", ref.Username), []domain.UserID{ref.ID}, ref.Username)
}

func (x executor) whitelistRemove(name string) (CommandResult, error) {
	ref, ok := domain.FindRefByName(x.room.WhitelistedUsers, name)
	if !ok {
		return CommandResult{}, domain.Errorf(domain.KindNotFound, "%s is not whitelisted.", name)
	}
	x.room.WhitelistedUsers = slices.DeleteFunc(x.room.WhitelistedUsers, func(u domain.UserRef) bool { return u.ID == ref.ID })
	return x.notify(domain.ActionWhitelistDel, fmt.Sprintf("%s has been removed from the whitelist.", ref.Username), []domain.UserID{ref.ID}, ref.Username)
}

// lastRefByName prefers the most recent knock when names collide.
func lastRefByName(refs []domain.UserRef, name string) (domain.UserRef, bool) {
	for i := len(refs) - 1; i >= 0; i-- {
		if strings.EqualFold(refs[i].Username, name) {
			return refs[i], true
		}
	}
	return domain.UserRef{}, false
}

func verb(ban bool) string {
	if ban {
		return CmdBan
	}
	return CmdKick
}
