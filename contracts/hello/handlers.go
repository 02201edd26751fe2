package hello

import (
	"github.com/govm-net/hellokv/core"
)

// Contract is the method table the host dispatches on
var Contract = core.Contract{
	Name: ContractName,
	Methods: []core.Method{
		{
			Name:    "initialize",
			Init:    true,
			Mutates: true,
			Inputs:  []core.Param{{Name: "owner", Type: "AccountId", Optional: true}},
			Handler: handleInitialize,
		},
		{Name: "get_metadata", View: true, Output: "ContractMetadata", Handler: handleGetMetadata},
		{Name: "get_owner", View: true, Output: "AccountId", Handler: handleGetOwner},
		{
			Name:    "get_data",
			View:    true,
			Inputs:  []core.Param{{Name: "key", Type: "String"}},
			Output:  "Option<String>",
			Handler: handleGetData,
		},
		{
			Name:    "hello",
			View:    true,
			Inputs:  []core.Param{{Name: "name", Type: "String"}},
			Output:  "String",
			Handler: handleHello,
		},
		{
			Name:      "set_data",
			Mutates:   true,
			OwnerOnly: true,
			Inputs: []core.Param{
				{Name: "key", Type: "String"},
				{Name: "value", Type: "String"},
			},
			Handler: handleSetData,
		},
		{Name: "donate", Payable: true, Output: "String", Handler: handleDonate},
	},
}

type InitializeParams struct {
	Owner *core.AccountID `json:"owner,omitempty"`
}

func handleInitialize(ctx core.Context, params []byte) (any, error) {
	var args InitializeParams
	if err := core.DecodeArgs(params, &args); err != nil {
		return nil, err
	}
	if _, err := Initialize(ctx, args.Owner); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleGetMetadata(ctx core.Context, params []byte) (any, error) {
	s, err := Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetMetadata(), nil
}

func handleGetOwner(ctx core.Context, params []byte) (any, error) {
	s, err := Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetOwner(), nil
}

type GetDataParams struct {
	Key string `json:"key"`
}

func handleGetData(ctx core.Context, params []byte) (any, error) {
	var args GetDataParams
	if err := core.DecodeArgs(params, &args); err != nil {
		return nil, err
	}
	s, err := Load(ctx)
	if err != nil {
		return nil, err
	}
	value, ok, err := s.GetData(ctx, args.Key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return value, nil
}

type HelloParams struct {
	Name string `json:"name"`
}

func handleHello(ctx core.Context, params []byte) (any, error) {
	var args HelloParams
	if err := core.DecodeArgs(params, &args); err != nil {
		return nil, err
	}
	s, err := Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.Hello(args.Name), nil
}

type SetDataParams struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func handleSetData(ctx core.Context, params []byte) (any, error) {
	var args SetDataParams
	if err := core.DecodeArgs(params, &args); err != nil {
		return nil, err
	}
	s, err := Load(ctx)
	if err != nil {
		return nil, err
	}
	return nil, s.SetData(ctx, args.Key, args.Value)
}

func handleDonate(ctx core.Context, params []byte) (any, error) {
	s, err := Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.Donate(ctx), nil
}
