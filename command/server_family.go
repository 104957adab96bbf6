/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package command

import (
	"strconv"

	"github.com/launix-de/nanoredis/obj"
	"github.com/launix-de/nanoredis/resp"
)

func init() {
	Register(Command{"PING", -1, NoKey | ReadOnly, "ping the server", cmdPing})
	Register(Command{"ECHO", 2, NoKey | ReadOnly, "echo the given string", cmdEcho})
	Register(Command{"QUIT", 1, NoKey, "close the connection", cmdQuit})
	Register(Command{"CONFIG", -2, Admin, "get or set server configuration parameters", cmdConfig})
	Register(Command{"INFO", -1, NoKey | ReadOnly, "get information and statistics about the server", cmdInfo})
	Register(Command{"CLIENT", -2, Admin, "inspect or control client connections", cmdClient})
	Register(Command{"SAVE", 1, Admin, "synchronously save the dataset to disk", cmdSave})
	Register(Command{"BGSAVE", -1, Admin, "asynchronously save the dataset to disk", cmdBGSave})
	Register(Command{"LASTSAVE", 1, NoKey | ReadOnly, "get the UNIX timestamp of the last successful save", cmdLastSave})
	Register(Command{"SHUTDOWN", -1, Admin, "synchronously save the dataset to disk and then shut down", cmdShutdown})
	Register(Command{"DEBUG", -2, Admin, "debugging and introspection subcommands", cmdDebug})
	Register(Command{"COMMAND", -1, NoKey | ReadOnly, "get array of command details", cmdCommand})
	Register(Command{"TIME", 1, NoKey | ReadOnly, "return the current server time", cmdTime})
}

func cmdTime(ctx *Context, args []obj.Obj) []byte {
	ms := ctx.Server.Now()
	out := resp.MakeArrayHeader(2)
	out = append(out, resp.MakeBulkString([]byte(strconv.FormatInt(ms/1000, 10)))...)
	out = append(out, resp.MakeBulkString([]byte(strconv.FormatInt((ms%1000)*1000, 10)))...)
	return out
}

func cmdPing(ctx *Context, args []obj.Obj) []byte {
	if len(args) == 2 {
		return resp.MakeBulkString(argStr(args, 1))
	}
	return resp.PONG
}

func cmdEcho(ctx *Context, args []obj.Obj) []byte {
	return resp.MakeBulkString(argStr(args, 1))
}

func cmdQuit(ctx *Context, args []obj.Obj) []byte {
	if ctx.CloseAfterReply != nil {
		*ctx.CloseAfterReply = true
	}
	return resp.OK
}

func cmdConfig(ctx *Context, args []obj.Obj) []byte {
	switch argUpper(args, 1) {
	case "GET":
		if len(args) != 3 {
			userErrorf("wrong number of arguments for 'config|get' command")
		}
		pairs := ctx.Server.ConfigGet(string(argStr(args, 2)))
		out := resp.MakeArrayHeader(len(pairs) * 2)
		for _, p := range pairs {
			out = append(out, resp.MakeBulkString([]byte(p[0]))...)
			out = append(out, resp.MakeBulkString([]byte(p[1]))...)
		}
		return out
	case "SET":
		if len(args) != 4 {
			userErrorf("wrong number of arguments for 'config|set' command")
		}
		if err := ctx.Server.ConfigSet(string(argStr(args, 2)), string(argStr(args, 3))); err != nil {
			userErrorf("%v", err)
		}
		return resp.OK
	case "RESETSTAT":
		return resp.OK
	default:
		userErrorf("unknown CONFIG subcommand '%s'", string(argStr(args, 1)))
		return nil
	}
}

func cmdInfo(ctx *Context, args []obj.Obj) []byte {
	return resp.MakeBulkString([]byte(ctx.Server.Info()))
}

func cmdClient(ctx *Context, args []obj.Obj) []byte {
	switch argUpper(args, 1) {
	case "GETNAME":
		return resp.MakeBulkString([]byte(*ctx.ConnName))
	case "SETNAME":
		if len(args) != 3 {
			userErrorf("wrong number of arguments for 'client|setname' command")
		}
		name := string(argStr(args, 2))
		*ctx.ConnName = name
		ctx.Server.SetClientName(ctx.ClientID, name)
		return resp.OK
	case "ID":
		return resp.MakeInteger(int64(ctx.ClientID))
	case "INFO":
		return resp.MakeBulkString([]byte("id=" + strconv.FormatUint(ctx.ClientID, 10) +
			" addr=" + ctx.Addr + " name=" + *ctx.ConnName + " db=" + strconv.Itoa(*ctx.DBIndex)))
	case "LIST":
		clients := ctx.Server.ClientList()
		var sb []byte
		for _, c := range clients {
			sb = append(sb, []byte("id="+strconv.FormatUint(c.ID, 10)+
				" addr="+c.Addr+
				" name="+c.Name+
				" db="+strconv.Itoa(c.DB)+
				" cmd="+c.LastCmd+
				" age="+strconv.FormatInt(c.AgeMs/1000, 10)+
				" idle="+strconv.FormatInt(c.IdleMs/1000, 10)+"\n")...)
		}
		return resp.MakeBulkString(sb)
	case "KILL":
		if len(args) != 3 {
			userErrorf("wrong number of arguments for 'client|kill' command")
		}
		id, err := strconv.ParseUint(string(argStr(args, 2)), 10, 64)
		if err != nil {
			userErrorf("invalid client id")
		}
		if ctx.Server.ClientKill(id) {
			return resp.OK
		}
		userErrorf("No such client")
		return nil
	case "PAUSE":
		if len(args) != 3 {
			userErrorf("wrong number of arguments for 'client|pause' command")
		}
		ms := argInt(args, 2)
		ctx.Server.PauseUntil(ctx.Server.Now() + ms)
		return resp.OK
	default:
		userErrorf("unknown CLIENT subcommand '%s'", string(argStr(args, 1)))
		return nil
	}
}

func cmdSave(ctx *Context, args []obj.Obj) []byte {
	if err := ctx.Server.Save(); err != nil {
		userErrorf("%v", err)
	}
	return resp.OK
}

func cmdBGSave(ctx *Context, args []obj.Obj) []byte {
	if err := ctx.Server.BGSave(); err != nil {
		userErrorf("%v", err)
	}
	return resp.MakeSimpleString("Background saving started")
}

func cmdLastSave(ctx *Context, args []obj.Obj) []byte {
	return resp.MakeInteger(ctx.Server.LastSaveMs() / 1000)
}

func cmdShutdown(ctx *Context, args []obj.Obj) []byte {
	save := true
	for i := 1; i < len(args); i++ {
		switch argUpper(args, i) {
		case "NOSAVE":
			save = false
		case "SAVE":
			save = true
		}
	}
	ctx.Server.RequestShutdown(save)
	// SHUTDOWN never replies in real Redis (the connection is torn down by
	// the process exiting); returning OK here only covers callers that
	// disable the actual process exit for testing.
	return resp.OK
}

func cmdDebug(ctx *Context, args []obj.Obj) []byte {
	switch argUpper(args, 1) {
	case "JSON-TABLE", "JSONTABLE":
		return resp.MakeBulkString([]byte(ctx.Server.DebugJSONTable()))
	case "SLEEP":
		return resp.OK
	default:
		userErrorf("unknown DEBUG subcommand '%s'", string(argStr(args, 1)))
		return nil
	}
}

func cmdCommand(ctx *Context, args []obj.Obj) []byte {
	if len(args) == 2 && argUpper(args, 1) == "COUNT" {
		return resp.MakeInteger(int64(len(defaultRegistry.All())))
	}
	cmds := defaultRegistry.All()
	out := resp.MakeArrayHeader(len(cmds))
	for _, c := range cmds {
		entry := resp.MakeArrayHeader(2)
		entry = append(entry, resp.MakeBulkString([]byte(c.Name))...)
		entry = append(entry, resp.MakeInteger(int64(c.Arity))...)
		out = append(out, entry...)
	}
	return out
}
