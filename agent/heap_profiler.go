package agent

import (
	"encoding/json"
	"github.com/fansqz/inspector-bridge/constants"
	"github.com/fansqz/inspector-bridge/heapid"
	"github.com/fansqz/inspector-bridge/injection"
	"github.com/fansqz/inspector-bridge/protocol"
	"github.com/tidwall/gjson"
	"strconv"
)

type getObjectByHeapObjectIDParams struct {
	ObjectID    string `json:"objectId"`
	ObjectGroup string `json:"objectGroup"`
}

type getObjectByHeapObjectIDResult struct {
	Result *protocol.RemoteObject `json:"result"`
}

// NewHeapProfiler HeapProfiler 域，返回的对象 id 都是 heap:<handle> 形式
func NewHeapProfiler(debugger Debugger, frontend Frontend, manager *injection.Manager, groups *ObjectGroups) *Agent {
	a := NewAgent(constants.DomainHeapProfiler, debugger, frontend, manager.Inject(injection.KeyHeapProfiler))
	a.TranslateCommandToInjection(
		"takeHeapSnapshot",
		"startTrackingHeapObjects",
		"stopTrackingHeapObjects",
		"collectGarbage",
		"getHeapObjectId",
	)
	a.TranslateEventToFrontend(
		"addHeapSnapshotChunk",
		"reportHeapSnapshotProgress",
		"lastSeenObjectId",
		"heapStatsUpdate",
		"resetProfiles",
	)

	a.Register("getObjectByHeapObjectId", func(params json.RawMessage, reply Reply) {
		var p getObjectByHeapObjectIDParams
		if err := decodeParams(params, &p); err != nil {
			reply(nil, err)
			return
		}
		externalID := p.ObjectID
		if handle, err := strconv.Atoi(p.ObjectID); err == nil {
			externalID = heapid.Format(handle)
		}
		a.whenInjected(func(err error) {
			if err != nil {
				reply(nil, err)
				return
			}
			heapid.Lookup(debugger, externalID, p.ObjectGroup, func(err error, body json.RawMessage, refs json.RawMessage) {
				if err != nil {
					reply(nil, err)
					return
				}
				result := toRemoteObject(gjson.ParseBytes(body))
				if result.ObjectID != "" {
					groups.Acquire(p.ObjectGroup)
				}
				reply(&getObjectByHeapObjectIDResult{Result: result}, nil)
			})
		})
	})
	return a
}
