package ops

import (
	_ "github.com/gcexplain/gcexplain/train_ops/ablation"
	_ "github.com/gcexplain/gcexplain/train_ops/classifier"
	_ "github.com/gcexplain/gcexplain/train_ops/cvae"
	_ "github.com/gcexplain/gcexplain/train_ops/figures"
	_ "github.com/gcexplain/gcexplain/train_ops/params"
)
