package script

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ecowatt/shelly-onboard/pkg/shelly/types"

	"github.com/go-logr/logr"
	"github.com/tdewolff/minify/v2"
	mjs "github.com/tdewolff/minify/v2/js"
)

// StepError names the installation step that failed.
type StepError struct {
	Verb Verb
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Verb, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func Minify(src []byte) ([]byte, error) {
	m := minify.New()
	m.AddFunc("text/javascript", mjs.Minify)
	var out bytes.Buffer
	if err := m.Minify("text/javascript", &out, bytes.NewReader(src)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// removeLoaded deletes every slot already named name, stopping it first when
// running. It returns the removed ids.
func removeLoaded(ctx context.Context, log logr.Logger, device types.Device, name string) ([]uint32, error) {
	loaded, err := DoList(ctx, device)
	if err != nil {
		return nil, &StepError{Verb: List, Err: err}
	}
	var removed []uint32
	for _, l := range loaded {
		if l.Name != name {
			continue
		}
		if l.Running {
			if err := DoStop(ctx, device, l.Id.Id); err != nil {
				return removed, &StepError{Verb: Stop, Err: err}
			}
		}
		if err := DoDelete(ctx, device, l.Id.Id); err != nil {
			return removed, &StepError{Verb: Delete, Err: err}
		}
		log.Info("Deleted previous script", "name", name, "id", l.Id.Id)
		removed = append(removed, l.Id.Id)
	}
	return removed, nil
}

// Install removes any slot left under name, then creates an empty slot, writes the whole code into it
// in a single PutCode, enables it and starts it. Each step runs only once
// the previous one succeeded; the first failure aborts the sequence.
func Install(ctx context.Context, log logr.Logger, device types.Device, name string, code []byte, doMinify bool) (uint32, error) {
	if doMinify {
		origLen := len(code)
		minified, err := Minify(code)
		if err != nil {
			log.Error(err, "Minify failed", "name", name)
			return 0, err
		}
		code = minified
		log.V(1).Info("Minified script", "name", name, "from", origLen, "to", len(code))
	}

	if _, err := removeLoaded(ctx, log, device, name); err != nil {
		return 0, err
	}

	id, err := DoCreate(ctx, device, name)
	if err != nil {
		return 0, &StepError{Verb: Create, Err: err}
	}
	log.Info("Created script", "name", name, "id", id)

	n, err := DoPutCode(ctx, device, id, string(code))
	if err != nil {
		return id, &StepError{Verb: PutCode, Err: err}
	}
	log.Info("Uploaded script", "name", name, "id", id, "len", n)

	// enable: auto-start at next reboot
	if err := DoEnable(ctx, device, id); err != nil {
		return id, &StepError{Verb: SetConfig, Err: err}
	}

	if err := DoStart(ctx, device, id); err != nil {
		return id, &StepError{Verb: Start, Err: err}
	}
	log.Info("Started script", "name", name, "id", id)
	return id, nil
}
