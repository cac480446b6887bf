package samsung

import "encoding/json"

// Channel events emitted by the set on the remote-control WebSocket.
const (
	eventChannelConnect = "ms.channel.connect"
	eventInstalledApps  = "ed.installedApp.get"
)

// channelMessage is the envelope for every message on the channel.
type channelMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// channelConnectData is the payload of ms.channel.connect. The token
// field is present when the user has authorised the remote.
type channelConnectData struct {
	Token string `json:"token"`
}

// appEntry is one installed application in an ed.installedApp.get
// response.
type appEntry struct {
	AppID string `json:"appId"`
	Name  string `json:"name"`
}

// installedAppsData is the payload of an ed.installedApp.get event.
type installedAppsData struct {
	Data []appEntry `json:"data"`
}

// remoteCommand is the outbound envelope for remote-control requests.
type remoteCommand struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// keyParams carries a SendRemoteKey command. Cmd is Click for a tap,
// Press/Release bracketing a delay for a hold.
type keyParams struct {
	Cmd          string `json:"Cmd"`
	DataOfCmd    string `json:"DataOfCmd"`
	Option       string `json:"Option"`
	TypeOfRemote string `json:"TypeOfRemote"`
}

// appListParams requests the installed-app list.
type appListParams struct {
	Event string `json:"event"`
	To    string `json:"to"`
}

func keyCommand(cmd, key string) remoteCommand {
	return remoteCommand{
		Method: "ms.remote.control",
		Params: keyParams{
			Cmd:          cmd,
			DataOfCmd:    key,
			Option:       "false",
			TypeOfRemote: "SendRemoteKey",
		},
	}
}

func appListCommand() remoteCommand {
	return remoteCommand{
		Method: "ms.channel.ed.installedApp.get",
		Params: appListParams{
			Event: eventInstalledApps,
			To:    "host",
		},
	}
}
